package wallet

import "errors"

var (
	// ErrUnverifiedVid is returned when a referenced VID has no record in
	// the wallet at all (neither verified nor owned).
	ErrUnverifiedVid = errors.New("wallet: unverified vid")

	// ErrMissingPrivateVid is returned when an operation needs private key
	// material for a VID the wallet only holds in verified form.
	ErrMissingPrivateVid = errors.New("wallet: missing private vid")

	// ErrInvalidRoute is returned for a malformed explicit hop list.
	ErrInvalidRoute = errors.New("wallet: invalid route")

	// ErrMissingDropOff is returned when forwarding a routed message whose
	// final hop has no configured relation VID to deliver to.
	ErrMissingDropOff = errors.New("wallet: missing drop-off relation")

	// ErrUnresolvedNextHop is returned when a routed message names a next
	// hop this wallet has no record of.
	ErrUnresolvedNextHop = errors.New("wallet: unresolved next hop")

	// ErrInvalidNextHop is returned when a routed message's next hop has no
	// relation VID configured to forward through.
	ErrInvalidNextHop = errors.New("wallet: invalid next hop")

	// ErrUnverifiedSource is returned by OpenMessage when a message's
	// sender has no verified record in the wallet.
	ErrUnverifiedSource = errors.New("wallet: unverified source")

	// ErrUnexpectedRecipient is returned by OpenMessage when a message's
	// declared receiver is not a VID this wallet owns.
	ErrUnexpectedRecipient = errors.New("wallet: unexpected recipient")

	// ErrRelationship covers relationship-state preconditions that a
	// make_*/open operation failed to satisfy (thread-ID mismatch, missing
	// relationship, self-cancellation, ...).
	ErrRelationship = errors.New("wallet: relationship precondition failed")
)

// UnverifiedSourceError carries the still-undecoded message bytes alongside
// ErrUnverifiedSource, mirroring the reference implementation's async-mode
// PendingMessage so a caller can choose to verify the sender out of band
// and retry.
type UnverifiedSourceError struct {
	Sender  string
	Message []byte
}

func (e *UnverifiedSourceError) Error() string {
	return "wallet: unverified source: " + e.Sender
}

func (e *UnverifiedSourceError) Unwrap() error { return ErrUnverifiedSource }
