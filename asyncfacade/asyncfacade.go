// Package asyncfacade wraps wallet.Wallet and a transport.TCPTransport-style
// adapter in a goroutine/channel-based send/receive interface, mirroring the
// goroutine-per-connection server loop idiom used throughout this codebase
// (transport.TCPTransport.acceptLoop): the synchronous
// core does the CPU work under its own locks, and suspension only happens at
// the transport I/O boundary.
package asyncfacade

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cvsouth/tsp-go/definitions"
	"github.com/cvsouth/tsp-go/wallet"
)

// Endpoint is the minimal transport a Facade needs: deliver bytes to a peer
// endpoint. Inbound bytes reach the Facade through Receive's channel instead.
// transport.TCPTransport satisfies this directly.
type Endpoint interface {
	Send(endpoint string, message []byte) error
}

// ReceivedMessage is one item of a receive stream: either an opened message
// (possibly PendingMessage-shaped) or the error OpenMessage returned for it.
type ReceivedMessage struct {
	Message definitions.ReceivedTspMessage
	Err     error
}

// Facade is a thin async wrapper around a *wallet.Wallet. The wallet is
// already guarded by its own internal locks (a readers-writer lock per
// spec.md's concurrency model), so Facade hands out the same *wallet.Wallet
// pointer to every receive goroutine rather than cloning anything — the
// "reference-counted handle to a lock-guarded record map" is just the
// pointer itself plus Go's garbage collector.
type Facade struct {
	wallet    *wallet.Wallet
	transport Endpoint
	logger    *slog.Logger
}

// New builds a Facade over an already-populated wallet and a transport
// adapter used to deliver outbound bytes. A nil logger falls back to
// slog.Default.
func New(w *wallet.Wallet, t Endpoint, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{wallet: w, transport: t, logger: logger}
}

// Send seals message from sender to receiver and delivers it over the
// transport. If the wallet has no relationship at all with receiver yet
// (RelationStatusForVidPair reports Unrelated), Send first fires off a
// relationship request and does not wait for it to be accepted — per
// spec.md's "the spec is neutral on whether to await the accept", the
// request is sent in its own goroutine so a cold first Send never blocks on
// a peer that may never answer.
func (f *Facade) Send(sender, receiver string, nonconfidentialData, message []byte) error {
	if f.wallet.RelationStatusForVidPair(sender, receiver).Kind == definitions.Unrelated {
		f.bootstrapRelationship(sender, receiver)
	}

	sealed, err := f.wallet.SealMessage(sender, receiver, nonconfidentialData, message)
	if err != nil {
		return fmt.Errorf("asyncfacade: seal: %w", err)
	}
	if err := f.transport.Send(sealed.Transport, sealed.Message); err != nil {
		return fmt.Errorf("asyncfacade: deliver to %s: %w", sealed.Transport, err)
	}
	return nil
}

func (f *Facade) bootstrapRelationship(sender, receiver string) {
	sealed, err := f.wallet.MakeRelationshipRequest(sender, receiver, nil)
	if err != nil {
		f.logger.Warn("auto-bootstrap relationship request failed", "sender", sender, "receiver", receiver, "err", err)
		return
	}
	go func() {
		if err := f.transport.Send(sealed.Transport, sealed.Message); err != nil {
			f.logger.Warn("auto-bootstrap relationship request delivery failed", "sender", sender, "receiver", receiver, "err", err)
		}
	}()
}

// VerifyVid registers a VID's public material as verified, letting the
// wallet open messages signed or addressed to it. A caller typically
// resolves a PendingMessage's UnverifiedSender to this by some out-of-band
// means (a DID resolver, a referral) before calling VerifyAndOpen.
func (f *Facade) VerifyVid(v definitions.VerifiedVid) {
	f.wallet.AddVerifiedVid(v, nil)
}

// VerifyAndOpen re-opens a pending message's raw bytes after its sender has
// been verified with VerifyVid. payload is the still-undecoded message
// carried by a PendingMessage-shaped ReceivedTspMessage (its
// PendingInnerMessage field) or by a wallet.UnverifiedSourceError's Message
// field.
func (f *Facade) VerifyAndOpen(payload []byte) (definitions.ReceivedTspMessage, error) {
	return f.wallet.OpenMessage(payload)
}

// Receive starts a goroutine that reads raw messages off incoming and opens
// each one against the wallet, publishing results on the returned channel.
// This is the "lazy infinite sequence" of spec.md's receive(vid): the
// channel stays open until incoming is closed by the caller, at which point
// Receive's goroutine exits and the channel is closed. The goroutine only
// stops between OpenMessage calls, never in the middle of one.
//
// An UnverifiedSourceError from OpenMessage is translated into a
// PendingMessage-shaped ReceivedTspMessage (the async-only shape spec.md
// describes) rather than being propagated as a Go error, so a Receive
// consumer's switch over Kind covers every case uniformly; any other open
// error is delivered as ReceivedMessage.Err.
func (f *Facade) Receive(incoming <-chan []byte) <-chan ReceivedMessage {
	out := make(chan ReceivedMessage)
	go func() {
		defer close(out)
		for wire := range incoming {
			out <- f.openOne(wire)
		}
	}()
	return out
}

func (f *Facade) openOne(wire []byte) ReceivedMessage {
	msg, err := f.wallet.OpenMessage(wire)
	if err == nil {
		return ReceivedMessage{Message: msg}
	}

	var unverified *wallet.UnverifiedSourceError
	if errors.As(err, &unverified) {
		return ReceivedMessage{Message: definitions.ReceivedTspMessage{
			Kind:                definitions.KindPendingMessage,
			UnverifiedSender:    unverified.Sender,
			PendingInnerMessage: unverified.Message,
		}}
	}
	return ReceivedMessage{Err: err}
}

// CheckTimeouts drains the wallet's pending relationship-request tracker,
// returning peers whose request went unanswered past wallet.RequestTimeout.
func (f *Facade) CheckTimeouts() []string {
	return f.wallet.CheckTimeouts()
}
