package cryptoengine

import "errors"

var (
	// ErrOpenFailed covers AEAD authentication failure for either the HPKE
	// or NaCl variant (wrong key, tampered ciphertext, or wrong AAD).
	ErrOpenFailed = errors.New("cryptoengine: open failed")

	// ErrUnexpectedSender is returned when an ESSR payload's embedded
	// sender identity doesn't match the outer envelope's declared sender.
	ErrUnexpectedSender = errors.New("cryptoengine: embedded sender does not match envelope sender")

	// ErrMissingSender is returned when an ESSR payload is expected to
	// embed a sender identity but doesn't.
	ErrMissingSender = errors.New("cryptoengine: ESSR payload missing embedded sender")

	// ErrUnsupportedVariant is returned for a CryptoType/SignatureType this
	// build recognizes on the wire but cannot seal/open/sign/verify,
	// i.e. the post-quantum variants (see DESIGN.md's dependency-gap note).
	ErrUnsupportedVariant = errors.New("cryptoengine: post-quantum variant not implemented")
)
