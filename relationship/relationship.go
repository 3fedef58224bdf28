// Package relationship implements the Trust Spanning Protocol's relationship
// state machine: a pure transition function over RelationshipStatus driven
// by the events a wallet observes (sending or receiving a request, accept,
// or cancel, or a pending request timing out).
package relationship

import (
	"errors"
	"fmt"

	"github.com/cvsouth/tsp-go/definitions"
)

// EventKind names the seven events the state machine accepts.
type EventKind uint8

const (
	SendRequest EventKind = iota
	ReceiveRequest
	SendAccept
	ReceiveAccept
	SendCancel
	ReceiveCancel
	Timeout
)

// Event is one state-machine input: a kind plus, where relevant, the thread
// ID it carries.
type Event struct {
	Kind     EventKind
	ThreadID definitions.Digest
}

// ErrInvalidTransition is returned when an event has no defined transition
// from the current status.
var ErrInvalidTransition = errors.New("relationship: invalid transition")

// ErrThreadIDMismatch is returned when an accept's thread ID doesn't match
// the request that is awaiting it.
var ErrThreadIDMismatch = errors.New("relationship: thread ID mismatch")

// ErrConcurrencyConflict is returned when both sides of a pair
// simultaneously send a relationship request (so neither can distinguish
// "my own echoed request" from "a fresh incoming request").
var ErrConcurrencyConflict = errors.New("relationship: concurrency conflict")

// ThreadIDMismatchError carries the expected and received thread IDs.
type ThreadIDMismatchError struct {
	Expected, Got definitions.Digest
}

func (e *ThreadIDMismatchError) Error() string {
	return fmt.Sprintf("relationship: thread ID mismatch: expected %s, got %s", e.Expected, e.Got)
}

func (e *ThreadIDMismatchError) Unwrap() error { return ErrThreadIDMismatch }

// InvalidTransitionError carries the offending (status, event) pair.
type InvalidTransitionError struct {
	From  definitions.RelationshipKind
	Event EventKind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("relationship: invalid transition: event %d from state %s", e.Event, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// Transition advances status given event, returning the new status or an
// error if the event is not valid from the current state. This mirrors the
// reference state machine's transition table exactly, including its
// idempotence and re-handshake special cases.
func Transition(status definitions.RelationshipStatus, event Event) (definitions.RelationshipStatus, error) {
	switch status.Kind {

	case definitions.Unrelated:
		switch event.Kind {
		case SendRequest:
			return definitions.RelationshipStatus{Kind: definitions.Unidirectional, ThreadID: event.ThreadID}, nil
		case ReceiveRequest:
			return definitions.RelationshipStatus{Kind: definitions.ReverseUnidirectional, ThreadID: event.ThreadID}, nil
		}

	case definitions.Unidirectional:
		switch event.Kind {
		case SendRequest:
			// Idempotent if it's the same request being resent; otherwise
			// this overrides the prior request with a new thread ID.
			return definitions.RelationshipStatus{Kind: definitions.Unidirectional, ThreadID: event.ThreadID}, nil
		case ReceiveRequest:
			// Both sides sent a request at the same time; the receiver
			// cannot tell this apart from its own request being echoed back.
			return definitions.RelationshipStatus{}, fmt.Errorf("%w: both sides sent a request concurrently", ErrConcurrencyConflict)
		case ReceiveAccept:
			if !status.ThreadID.Equal(event.ThreadID) {
				return definitions.RelationshipStatus{}, &ThreadIDMismatchError{Expected: status.ThreadID, Got: event.ThreadID}
			}
			return definitions.BiDefault(status.ThreadID), nil
		case SendCancel, Timeout:
			return definitions.RelationshipStatus{Kind: definitions.Unrelated}, nil
		}

	case definitions.ReverseUnidirectional:
		switch event.Kind {
		case SendAccept:
			if !status.ThreadID.Equal(event.ThreadID) {
				return definitions.RelationshipStatus{}, &ThreadIDMismatchError{Expected: status.ThreadID, Got: event.ThreadID}
			}
			return definitions.BiDefault(status.ThreadID), nil
		case ReceiveRequest:
			// Idempotent on the same thread ID; a different ID restarts the
			// reverse-unidirectional handshake with the new ID.
			return definitions.RelationshipStatus{Kind: definitions.ReverseUnidirectional, ThreadID: event.ThreadID}, nil
		case SendCancel:
			return definitions.RelationshipStatus{Kind: definitions.Unrelated}, nil
		}

	case definitions.Bidirectional:
		switch event.Kind {
		case SendCancel, ReceiveCancel:
			return definitions.RelationshipStatus{Kind: definitions.Unrelated}, nil
		case ReceiveRequest:
			if status.ThreadID.Equal(event.ThreadID) {
				return status, nil // no-op: this is the request we already have
			}
			// A fresh request on an already-bidirectional relationship
			// resets to the reverse-unidirectional handshake.
			return definitions.RelationshipStatus{Kind: definitions.ReverseUnidirectional, ThreadID: event.ThreadID}, nil
		case ReceiveAccept:
			if status.ThreadID.Equal(event.ThreadID) {
				return status, nil // no-op
			}
			return definitions.RelationshipStatus{}, &ThreadIDMismatchError{Expected: status.ThreadID, Got: event.ThreadID}
		}
	}

	return definitions.RelationshipStatus{}, &InvalidTransitionError{From: status.Kind, Event: event.Kind}
}
