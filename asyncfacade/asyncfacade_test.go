package asyncfacade_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/cvsouth/tsp-go/asyncfacade"
	"github.com/cvsouth/tsp-go/definitions"
	"github.com/cvsouth/tsp-go/transport"
	"github.com/cvsouth/tsp-go/vid"
	"github.com/cvsouth/tsp-go/wallet"
)

// listeningWallet wires up a wallet whose owned VID's endpoint is a real
// loopback listener fed into an asyncfacade.Facade, so messages sent to it
// over transport.TCPTransport actually round-trip through a socket.
func listeningWallet(t *testing.T) (*wallet.Wallet, *vid.OwnedVid, <-chan asyncfacade.ReceivedMessage, func()) {
	t.Helper()
	tx := transport.New(nil)
	incoming := make(chan []byte, 8)
	ln, err := tx.Listen("127.0.0.1:0", func(message []byte) { incoming <- message })
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	endpoint, err := url.Parse("tsp://" + ln.Addr().String())
	if err != nil {
		t.Fatalf("parse endpoint: %v", err)
	}
	ownVid, err := vid.NewDIDPeer(endpoint)
	if err != nil {
		t.Fatalf("new did:peer: %v", err)
	}

	w := wallet.New()
	w.AddPrivateVid(ownVid, nil)

	f := asyncfacade.New(w, tx, nil)
	received := f.Receive(incoming)

	cleanup := func() {
		ln.Close()
		tx.Close()
	}
	return w, ownVid, received, cleanup
}

func recvWithTimeout(t *testing.T, ch <-chan asyncfacade.ReceivedMessage) asyncfacade.ReceivedMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for received message")
		return asyncfacade.ReceivedMessage{}
	}
}

func TestSendReceiveRoundTrip(t *testing.T) {
	bobWallet, bobVid, bobReceived, cleanup := listeningWallet(t)
	defer cleanup()

	aliceVid, err := vid.NewDIDPeer(mustURL(t, "tsp://alice.example"))
	if err != nil {
		t.Fatalf("new did:peer: %v", err)
	}
	aliceWallet := wallet.New()
	aliceWallet.AddPrivateVid(aliceVid, nil)
	aliceWallet.AddVerifiedVid(bobVid, nil)
	bobWallet.AddVerifiedVid(aliceVid, nil)

	aliceTx := transport.New(nil)
	defer aliceTx.Close()
	aliceFacade := asyncfacade.New(aliceWallet, aliceTx, nil)

	if err := aliceFacade.Send(aliceVid.Identifier(), bobVid.Identifier(), nil, []byte("hi bob")); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Send also auto-bootstraps a relationship request from its own
	// goroutine, so the payload may arrive first or second.
	var got asyncfacade.ReceivedMessage
	for i := 0; i < 2; i++ {
		got = recvWithTimeout(t, bobReceived)
		if got.Err != nil {
			t.Fatalf("received error: %v", got.Err)
		}
		if got.Message.Kind != definitions.KindRequestRelationship {
			break
		}
	}
	if got.Message.Kind != definitions.KindGenericMessage {
		t.Fatalf("kind = %v, want GenericMessage", got.Message.Kind)
	}
	if string(got.Message.Message) != "hi bob" {
		t.Fatalf("message = %q, want %q", got.Message.Message, "hi bob")
	}
}

func TestSendAutoBootstrapsRelationship(t *testing.T) {
	bobWallet, bobVid, bobReceived, cleanup := listeningWallet(t)
	defer cleanup()

	aliceVid, err := vid.NewDIDPeer(mustURL(t, "tsp://alice.example"))
	if err != nil {
		t.Fatalf("new did:peer: %v", err)
	}
	aliceWallet := wallet.New()
	aliceWallet.AddPrivateVid(aliceVid, nil)
	aliceWallet.AddVerifiedVid(bobVid, nil)
	bobWallet.AddVerifiedVid(aliceVid, nil)

	aliceTx := transport.New(nil)
	defer aliceTx.Close()
	aliceFacade := asyncfacade.New(aliceWallet, aliceTx, nil)

	if got := aliceWallet.RelationStatusForVidPair(aliceVid.Identifier(), bobVid.Identifier()); got.Kind != definitions.Unrelated {
		t.Fatalf("relation status before send = %v, want Unrelated", got.Kind)
	}

	if err := aliceFacade.Send(aliceVid.Identifier(), bobVid.Identifier(), nil, []byte("first contact")); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := aliceWallet.RelationStatusForVidPair(aliceVid.Identifier(), bobVid.Identifier()); got.Kind != definitions.Unidirectional {
		t.Fatalf("relation status after send = %v, want Unidirectional", got.Kind)
	}

	// Two messages cross the wire: the auto-bootstrapped relationship
	// request and the payload. Order between them is not guaranteed (the
	// request is sent from its own goroutine), so collect both kinds.
	seenRequest, seenPayload := false, false
	for i := 0; i < 2; i++ {
		got := recvWithTimeout(t, bobReceived)
		if got.Err != nil {
			t.Fatalf("received error: %v", got.Err)
		}
		switch got.Message.Kind {
		case definitions.KindRequestRelationship:
			seenRequest = true
		case definitions.KindGenericMessage:
			seenPayload = true
			if string(got.Message.Message) != "first contact" {
				t.Fatalf("message = %q, want %q", got.Message.Message, "first contact")
			}
		default:
			t.Fatalf("unexpected kind %v", got.Message.Kind)
		}
	}
	if !seenRequest || !seenPayload {
		t.Fatalf("seenRequest=%v seenPayload=%v, want both true", seenRequest, seenPayload)
	}
}

func TestReceiveYieldsPendingMessageForUnverifiedSender(t *testing.T) {
	bobWallet, bobVid, bobReceived, cleanup := listeningWallet(t)
	defer cleanup()

	aliceVid, err := vid.NewDIDPeer(mustURL(t, "tsp://alice.example"))
	if err != nil {
		t.Fatalf("new did:peer: %v", err)
	}
	aliceWallet := wallet.New()
	aliceWallet.AddPrivateVid(aliceVid, nil)
	aliceWallet.AddVerifiedVid(bobVid, nil)
	// bob never learns about alice's verified vid before the send.

	aliceTx := transport.New(nil)
	defer aliceTx.Close()
	aliceFacade := asyncfacade.New(aliceWallet, aliceTx, nil)

	if err := aliceFacade.Send(aliceVid.Identifier(), bobVid.Identifier(), nil, []byte("who is this")); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Two pending messages arrive, in either order: the auto-bootstrapped
	// relationship request and the payload.
	var pending [][]byte
	for i := 0; i < 2; i++ {
		got := recvWithTimeout(t, bobReceived)
		if got.Err != nil {
			t.Fatalf("received error: %v", got.Err)
		}
		if got.Message.Kind != definitions.KindPendingMessage {
			t.Fatalf("kind = %v, want PendingMessage", got.Message.Kind)
		}
		if got.Message.UnverifiedSender != aliceVid.Identifier() {
			t.Fatalf("unverified sender = %q, want %q", got.Message.UnverifiedSender, aliceVid.Identifier())
		}
		pending = append(pending, got.Message.PendingInnerMessage)
	}

	bobFacade := asyncfacade.New(bobWallet, transport.New(nil), nil)
	bobFacade.VerifyVid(aliceVid)

	seenPayload := false
	for _, inner := range pending {
		reopened, err := bobFacade.VerifyAndOpen(inner)
		if err != nil {
			t.Fatalf("verify and open: %v", err)
		}
		switch reopened.Kind {
		case definitions.KindRequestRelationship:
		case definitions.KindGenericMessage:
			seenPayload = true
			if string(reopened.Message) != "who is this" {
				t.Fatalf("reopened = %+v, want generic message %q", reopened, "who is this")
			}
		default:
			t.Fatalf("reopened = %+v, want generic message %q", reopened, "who is this")
		}
	}
	if !seenPayload {
		t.Fatalf("no reopened generic message %q", "who is this")
	}
}

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}
