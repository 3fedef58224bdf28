package wallet_test

import (
	"bytes"
	"net/url"
	"testing"

	"github.com/cvsouth/tsp-go/definitions"
	"github.com/cvsouth/tsp-go/vid"
	"github.com/cvsouth/tsp-go/wallet"
)

func mustVid(t *testing.T, endpoint string) *vid.OwnedVid {
	t.Helper()
	u, err := url.Parse(endpoint)
	if err != nil {
		t.Fatalf("parse endpoint: %v", err)
	}
	v, err := vid.NewDIDPeer(u)
	if err != nil {
		t.Fatalf("new did:peer: %v", err)
	}
	return v
}

func pairedWallets(t *testing.T) (alice *wallet.Wallet, aliceVid *vid.OwnedVid, bob *wallet.Wallet, bobVid *vid.OwnedVid) {
	t.Helper()
	aliceVid = mustVid(t, "tsp://alice.example")
	bobVid = mustVid(t, "tsp://bob.example")

	alice = wallet.New()
	alice.AddPrivateVid(aliceVid, nil)
	alice.AddVerifiedVid(bobVid, nil)

	bob = wallet.New()
	bob.AddPrivateVid(bobVid, nil)
	bob.AddVerifiedVid(aliceVid, nil)
	return
}

func TestDirectSealOpenRoundTrip(t *testing.T) {
	alice, aliceVid, bob, _ := pairedWallets(t)

	sealed, err := alice.SealMessage(aliceVid.Identifier(), mustOtherID(alice, aliceVid), []byte("hello"), []byte("hi bob"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	msg, err := bob.OpenMessage(sealed.Message)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if msg.Kind != definitions.KindGenericMessage {
		t.Fatalf("kind = %v, want GenericMessage", msg.Kind)
	}
	if string(msg.Message) != "hi bob" {
		t.Fatalf("message = %q, want %q", msg.Message, "hi bob")
	}
}

func mustOtherID(w *wallet.Wallet, self *vid.OwnedVid) string {
	for _, id := range w.ListVids() {
		if id != self.Identifier() {
			return id
		}
	}
	return ""
}

func TestRelationshipRequestAcceptCancel(t *testing.T) {
	alice, aliceVid, bob, bobVid := pairedWallets(t)

	reqMsg, err := alice.MakeRelationshipRequest(aliceVid.Identifier(), bobVid.Identifier(), nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	received, err := bob.OpenMessage(reqMsg.Message)
	if err != nil {
		t.Fatalf("bob open request: %v", err)
	}
	if received.Kind != definitions.KindRequestRelationship {
		t.Fatalf("kind = %v, want RequestRelationship", received.Kind)
	}

	acceptMsg, err := bob.MakeRelationshipAccept(bobVid.Identifier(), aliceVid.Identifier(), received.ThreadID, nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	acceptReceived, err := alice.OpenMessage(acceptMsg.Message)
	if err != nil {
		t.Fatalf("alice open accept: %v", err)
	}
	if acceptReceived.Kind != definitions.KindAcceptRelationship {
		t.Fatalf("kind = %v, want AcceptRelationship", acceptReceived.Kind)
	}
	if timedOut := alice.CheckTimeouts(); len(timedOut) != 0 {
		t.Fatalf("CheckTimeouts() = %v after accept, want none pending", timedOut)
	}

	status := alice.RelationStatusForVidPair(aliceVid.Identifier(), bobVid.Identifier())
	if status.Kind != definitions.Bidirectional {
		t.Fatalf("alice status = %v, want Bidirectional", status.Kind)
	}

	cancelMsg, err := alice.MakeRelationshipCancel(aliceVid.Identifier(), bobVid.Identifier())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	cancelReceived, err := bob.OpenMessage(cancelMsg.Message)
	if err != nil {
		t.Fatalf("bob open cancel: %v", err)
	}
	if cancelReceived.Kind != definitions.KindCancelRelationship {
		t.Fatalf("kind = %v, want CancelRelationship", cancelReceived.Kind)
	}

	bobStatus := bob.RelationStatusForVidPair(bobVid.Identifier(), aliceVid.Identifier())
	if bobStatus.Kind != definitions.Unrelated {
		t.Fatalf("bob status after cancel = %v, want Unrelated", bobStatus.Kind)
	}

	if _, err := alice.MakeRelationshipCancel(aliceVid.Identifier(), bobVid.Identifier()); err == nil {
		t.Fatalf("expected error cancelling an already-unrelated relationship")
	}
}

func TestCancelWrongThreadIDRejected(t *testing.T) {
	alice, aliceVid, bob, bobVid := pairedWallets(t)

	reqMsg, err := alice.MakeRelationshipRequest(aliceVid.Identifier(), bobVid.Identifier(), nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	received, err := bob.OpenMessage(reqMsg.Message)
	if err != nil {
		t.Fatalf("bob open request: %v", err)
	}
	acceptMsg, err := bob.MakeRelationshipAccept(bobVid.Identifier(), aliceVid.Identifier(), received.ThreadID, nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := alice.OpenMessage(acceptMsg.Message); err != nil {
		t.Fatalf("alice open accept: %v", err)
	}

	// Forge alice's own bookkeeping with a thread id bob never agreed to,
	// then have her cancel against it; bob must reject the mismatch.
	var wrongID definitions.Digest
	copy(wrongID[:], bytes.Repeat([]byte{0xAB}, 32))
	if err := alice.SetRelationStatusForVid(bobVid.Identifier(), definitions.BiDefault(wrongID)); err != nil {
		t.Fatalf("force status: %v", err)
	}

	cancelMsg, err := alice.MakeRelationshipCancel(aliceVid.Identifier(), bobVid.Identifier())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := bob.OpenMessage(cancelMsg.Message); err == nil {
		t.Fatalf("expected thread id mismatch to be rejected")
	}
}

func TestNestedRelationship(t *testing.T) {
	alice, aliceVid, bob, bobVid := pairedWallets(t)

	// Establish a bidirectional parent relationship first.
	reqMsg, err := alice.MakeRelationshipRequest(aliceVid.Identifier(), bobVid.Identifier(), nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	received, err := bob.OpenMessage(reqMsg.Message)
	if err != nil {
		t.Fatalf("bob open request: %v", err)
	}
	acceptMsg, err := bob.MakeRelationshipAccept(bobVid.Identifier(), aliceVid.Identifier(), received.ThreadID, nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := alice.OpenMessage(acceptMsg.Message); err != nil {
		t.Fatalf("alice open accept: %v", err)
	}

	nestedReqMsg, aliceNested, err := alice.MakeNestedRelationshipRequest(aliceVid.Identifier(), bobVid.Identifier())
	if err != nil {
		t.Fatalf("nested request: %v", err)
	}

	nestedReceived, err := bob.OpenMessage(nestedReqMsg.Message)
	if err != nil {
		t.Fatalf("bob open nested request: %v", err)
	}
	if nestedReceived.Kind != definitions.KindRequestRelationship {
		t.Fatalf("kind = %v, want RequestRelationship", nestedReceived.Kind)
	}
	if nestedReceived.NestedVid == "" {
		t.Fatalf("expected nested vid to be populated")
	}
	if nestedReceived.NestedVid != aliceNested.Identifier() {
		t.Fatalf("nested vid = %s, want %s", nestedReceived.NestedVid, aliceNested.Identifier())
	}

	nestedAcceptMsg, bobNested, err := bob.MakeNestedRelationshipAccept(bobVid.Identifier(), aliceVid.Identifier(), nestedReceived.NestedVid, nestedReceived.ThreadID)
	if err != nil {
		t.Fatalf("nested accept: %v", err)
	}

	nestedAcceptReceived, err := alice.OpenMessage(nestedAcceptMsg.Message)
	if err != nil {
		t.Fatalf("alice open nested accept: %v", err)
	}
	if nestedAcceptReceived.Kind != definitions.KindAcceptRelationship {
		t.Fatalf("kind = %v, want AcceptRelationship", nestedAcceptReceived.Kind)
	}
	if nestedAcceptReceived.NestedVid != bobNested.Identifier() {
		t.Fatalf("nested vid = %s, want %s", nestedAcceptReceived.NestedVid, bobNested.Identifier())
	}

	status := alice.RelationStatusForVidPair(aliceNested.Identifier(), bobNested.Identifier())
	if status.Kind != definitions.Bidirectional {
		t.Fatalf("alice nested status = %v, want Bidirectional", status.Kind)
	}
}

func TestRoutedMessageForwarding(t *testing.T) {
	aliceVid := mustVid(t, "tsp://alice.example")
	relayVid := mustVid(t, "tsp://relay.example")
	bobVid := mustVid(t, "tsp://bob.example")

	alice := wallet.New()
	alice.AddPrivateVid(aliceVid, nil)
	alice.AddVerifiedVid(relayVid, nil)
	alice.AddVerifiedVid(bobVid, nil)

	relay := wallet.New()
	relay.AddPrivateVid(relayVid, nil)
	relay.AddVerifiedVid(aliceVid, nil)
	relay.AddVerifiedVid(bobVid, nil)

	bob := wallet.New()
	bob.AddPrivateVid(bobVid, nil)
	bob.AddVerifiedVid(relayVid, nil)
	bob.AddVerifiedVid(aliceVid, nil)

	if err := alice.SetRelationAndStatusForVid(relayVid.Identifier(), definitions.BiDefault(definitions.Digest{}), aliceVid.Identifier()); err != nil {
		t.Fatalf("set relation: %v", err)
	}
	// The route ends at a drop-off VID the relay owns; its relation VID names
	// the final recipient.
	dropOffVid := mustVid(t, "tsp://relay.example")
	relay.AddPrivateVid(dropOffVid, nil)
	bob.AddVerifiedVid(dropOffVid, nil)
	if err := relay.SetRelationAndStatusForVid(dropOffVid.Identifier(), definitions.BiDefault(definitions.Digest{}), bobVid.Identifier()); err != nil {
		t.Fatalf("set relation: %v", err)
	}
	if err := alice.SetRouteForVid(bobVid.Identifier(), []string{relayVid.Identifier(), dropOffVid.Identifier()}); err != nil {
		t.Fatalf("set route: %v", err)
	}

	sealed, err := alice.SealMessage(aliceVid.Identifier(), bobVid.Identifier(), nil, []byte("onion message"))
	if err != nil {
		t.Fatalf("seal routed: %v", err)
	}

	atRelay, err := relay.OpenMessage(sealed.Message)
	if err != nil {
		t.Fatalf("relay open: %v", err)
	}
	if atRelay.Kind != definitions.KindForwardRequest {
		t.Fatalf("kind = %v, want ForwardRequest", atRelay.Kind)
	}

	forwarded, err := relay.ForwardRoutedMessage(atRelay.NextHop, atRelay.RemainingRoute, atRelay.OpaquePayload)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	atBob, err := bob.OpenMessage(forwarded.Message)
	if err != nil {
		t.Fatalf("bob open forwarded: %v", err)
	}
	if atBob.Kind != definitions.KindGenericMessage {
		t.Fatalf("kind = %v, want GenericMessage", atBob.Kind)
	}
	if string(atBob.Message) != "onion message" {
		t.Fatalf("message = %q, want %q", atBob.Message, "onion message")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	alice, aliceVid, _, bobVid := pairedWallets(t)
	alice.AddSecretKey("k1", []byte("shh"))
	alice.SetAlias("bob", bobVid.Identifier())

	records, aliases, keys := alice.Export()

	restored := wallet.New()
	if err := restored.Import(records, aliases, keys); err != nil {
		t.Fatalf("import: %v", err)
	}

	if !restored.HasPrivateVid(aliceVid.Identifier()) {
		t.Fatalf("expected restored wallet to own %s", aliceVid.Identifier())
	}
	if !restored.HasVerifiedVid(bobVid.Identifier()) {
		t.Fatalf("expected restored wallet to know %s", bobVid.Identifier())
	}
	if got, ok := restored.GetSecretKey("k1"); !ok || string(got) != "shh" {
		t.Fatalf("secret key not restored: %q, %v", got, ok)
	}
	if id, ok := restored.ResolveAlias("bob"); !ok || id != bobVid.Identifier() {
		t.Fatalf("alias not restored: %q, %v", id, ok)
	}

	sealed, err := restored.SealMessage(aliceVid.Identifier(), bobVid.Identifier(), nil, []byte("still works"))
	if err != nil {
		t.Fatalf("seal after import: %v", err)
	}
	if len(sealed.Message) == 0 {
		t.Fatalf("expected non-empty sealed message")
	}
}
