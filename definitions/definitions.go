// Package definitions holds the shared domain types of the Trust Spanning
// Protocol core: digests, relationship status, wallet-level payloads, and
// the capability interfaces (VerifiedVid, PrivateVid) that the vid and
// wallet packages implement and consume.
package definitions

import (
	"crypto/subtle"
	"fmt"
)

// Digest is a 32-byte message digest used as a relationship thread
// identifier (the hash of a request/accept/cancel payload's nonce material).
type Digest [32]byte

// Equal reports whether two digests match, in constant time.
func (d Digest) Equal(other Digest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:])
}

// RelationshipKind tags which state a VID pair's relationship is in.
type RelationshipKind uint8

const (
	Unrelated RelationshipKind = iota
	Unidirectional
	ReverseUnidirectional
	Bidirectional
	// Controlled marks a VID the wallet itself owns both sides of (it
	// controls both the sender and the receiver private key). Reserved,
	// unused by any operation in this core — kept only so the wire and
	// state-machine vocabulary is complete.
	Controlled
)

func (k RelationshipKind) String() string {
	switch k {
	case Unrelated:
		return "unrelated"
	case Unidirectional:
		return "unidirectional"
	case ReverseUnidirectional:
		return "reverse-unidirectional"
	case Bidirectional:
		return "bidirectional"
	case Controlled:
		return "controlled"
	default:
		return "unknown"
	}
}

// ParseRelationshipKind is the inverse of RelationshipKind.String, used by
// the wallet's import path to restore exported relationship state.
func ParseRelationshipKind(s string) (RelationshipKind, error) {
	switch s {
	case "", "unrelated":
		return Unrelated, nil
	case "unidirectional":
		return Unidirectional, nil
	case "reverse-unidirectional":
		return ReverseUnidirectional, nil
	case "bidirectional":
		return Bidirectional, nil
	case "controlled":
		return Controlled, nil
	default:
		return 0, fmt.Errorf("definitions: unknown relationship kind %q", s)
	}
}

// RelationshipStatus is the tagged state of a relationship with one VID, as
// tracked by the wallet and advanced by the relationship state machine.
type RelationshipStatus struct {
	Kind     RelationshipKind
	ThreadID Digest // valid for Unidirectional, ReverseUnidirectional, Bidirectional

	// OutstandingNestedThreadIDs tracks nested-relationship requests made
	// under this (already bidirectional) relationship, so a later
	// AcceptNestedRelationship can be matched back to its request.
	OutstandingNestedThreadIDs []Digest
}

// BiDefault returns the default Bidirectional status for a freshly
// established relationship: no outstanding nested requests.
func BiDefault(threadID Digest) RelationshipStatus {
	return RelationshipStatus{Kind: Bidirectional, ThreadID: threadID}
}

// VerifiedVid is any VID whose public signing/encryption keys are known, so
// messages addressed to or signed by it can be sealed or verified.
type VerifiedVid interface {
	Identifier() string
	Endpoint() string
	PublicSigKey() []byte
	PublicEncKey() []byte
}

// PrivateVid is a VerifiedVid the wallet also holds the private keys for,
// so it can seal and sign messages as this identity.
type PrivateVid interface {
	VerifiedVid
	Sign(message []byte) ([]byte, error)
	DecryptionKey() []byte // X25519 private scalar, for HPKE/NaCl decap
}

// ReceivedTspMessage is the result of Wallet.OpenMessage: a decoded, typed
// outcome rather than a raw payload, so a caller's switch over the Kind
// reflects the wallet's full decision (relationship state changes already
// applied, routed-message hops already peeled).
type ReceivedTspMessageKind uint8

const (
	KindGenericMessage ReceivedTspMessageKind = iota
	KindRequestRelationship
	KindAcceptRelationship
	KindCancelRelationship
	KindForwardRequest
	KindNewIdentifier
	KindReferral
	KindPendingMessage // sender not yet verified; caller must verify then reopen
)

type ReceivedTspMessage struct {
	Kind ReceivedTspMessageKind

	Sender   string
	Receiver string

	CryptoType    uint8
	SignatureType uint8

	// KindGenericMessage
	Message []byte

	// KindRequestRelationship / KindAcceptRelationship / KindCancelRelationship
	ThreadID  Digest
	Route     []string
	NestedVid string // set when the request came in over a nested relationship

	// KindForwardRequest
	NextHop        string
	RemainingRoute []string
	OpaquePayload  []byte

	// KindNewIdentifier
	NewVid string

	// KindReferral
	ReferredVid string

	// KindPendingMessage
	PendingInnerMessage []byte
	UnverifiedSender    string
}

// Payload is the wallet-level message a caller hands to Wallet.SealMessage
// or receives (unwrapped) from Wallet.OpenMessage. This is distinct from
// cesr.Payload: the wallet-level payload never carries routing/nesting
// wrapper variants explicitly (those are a seal-time/open-time side effect
// of VidContext.ParentVid/Route, per spec.md's seal/open dispatch), except
// for RoutedMessage/NestedMessage which are used by forwarding agents that
// handle opaque hop payloads without understanding their contents.
type Payload interface{ isPayload() }

type Content []byte

func (Content) isPayload() {}

type RequestRelationship struct {
	Route    []string
	ThreadID Digest
}

func (RequestRelationship) isPayload() {}

type AcceptRelationship struct {
	ThreadID Digest
}

func (AcceptRelationship) isPayload() {}

type CancelRelationship struct {
	ThreadID Digest
}

func (CancelRelationship) isPayload() {}

type RequestNestedRelationship struct {
	ThreadID Digest
	Inner    []byte // a signed-only inner message proving control of the proposed nested VID
}

func (RequestNestedRelationship) isPayload() {}

type AcceptNestedRelationship struct {
	ThreadID Digest
	Inner    []byte
}

func (AcceptNestedRelationship) isPayload() {}

type NewIdentifier struct {
	ThreadID Digest
	NewVid   string
}

func (NewIdentifier) isPayload() {}

type Referral struct {
	ReferredVid string
}

func (Referral) isPayload() {}

type RoutedMessage struct {
	Hops    []string
	Message []byte
}

func (RoutedMessage) isPayload() {}

type NestedMessage struct {
	Message []byte
}

func (NestedMessage) isPayload() {}
