package cryptoengine_test

import (
	"bytes"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/cvsouth/tsp-go/cesr"
	"github.com/cvsouth/tsp-go/cryptoengine"
	"github.com/cvsouth/tsp-go/definitions"
	"github.com/cvsouth/tsp-go/vid"
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

func sealOpen(t *testing.T, ct cesr.CryptoType, st cesr.SignatureType) (definitions.Payload, error) {
	t.Helper()
	alice := mustVid(t, "tcp://alice.example:1337")
	bob := mustVid(t, "tcp://bob.example:1337")

	payload := definitions.Content("hello, bob")
	env, _, err := cryptoengine.Seal(cryptoengine.SealRequest{
		Sender:        alice,
		Receiver:      &bob.Vid,
		CryptoType:    ct,
		SignatureType: st,
		Payload:       payload,
	})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	wire := cesr.EncodeEnvelope(env)
	decodedEnv, _, err := cesr.DecodeEnvelope(wire)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}

	res, err := cryptoengine.Open(cryptoengine.OpenRequest{
		Envelope: decodedEnv,
		Sender:   &alice.Vid,
		Receiver: bob,
	})
	if err != nil {
		return nil, err
	}
	return res.Payload, nil
}

func TestSealOpenPlaintext(t *testing.T) {
	payload, err := sealOpen(t, cesr.CryptoPlaintext, cesr.SignatureNone)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	content, ok := payload.(definitions.Content)
	if !ok || !bytes.Equal(content, []byte("hello, bob")) {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestSealOpenPlaintextSigned(t *testing.T) {
	payload, err := sealOpen(t, cesr.CryptoPlaintext, cesr.SignatureEd25519)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if content, ok := payload.(definitions.Content); !ok || !bytes.Equal(content, []byte("hello, bob")) {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestSealOpenHpkeAuth(t *testing.T) {
	payload, err := sealOpen(t, cesr.CryptoHpkeAuth, cesr.SignatureNone)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if content, ok := payload.(definitions.Content); !ok || !bytes.Equal(content, []byte("hello, bob")) {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestSealOpenHpkeEssr(t *testing.T) {
	payload, err := sealOpen(t, cesr.CryptoHpkeEssr, cesr.SignatureNone)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if content, ok := payload.(definitions.Content); !ok || !bytes.Equal(content, []byte("hello, bob")) {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestSealOpenNaclAuth(t *testing.T) {
	payload, err := sealOpen(t, cesr.CryptoNaclAuth, cesr.SignatureNone)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if content, ok := payload.(definitions.Content); !ok || !bytes.Equal(content, []byte("hello, bob")) {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestHpkeAuthWrongReceiverFails(t *testing.T) {
	alice := mustVid(t, "tcp://alice.example:1337")
	bob := mustVid(t, "tcp://bob.example:1337")
	mallory := mustVid(t, "tcp://mallory.example:1337")

	env, _, err := cryptoengine.Seal(cryptoengine.SealRequest{
		Sender:     alice,
		Receiver:   &bob.Vid,
		CryptoType: cesr.CryptoHpkeAuth,
		Payload:    definitions.Content("secret"),
	})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	_, err = cryptoengine.Open(cryptoengine.OpenRequest{
		Envelope: env,
		Sender:   &alice.Vid,
		Receiver: mallory,
	})
	if !errors.Is(err, cryptoengine.ErrOpenFailed) {
		t.Fatalf("expected ErrOpenFailed opening with the wrong receiver key, got %v", err)
	}
}

func TestEssrEnvelopeSenderMismatchRejected(t *testing.T) {
	alice := mustVid(t, "tcp://alice.example:1337")
	bob := mustVid(t, "tcp://bob.example:1337")
	eve := mustVid(t, "tcp://eve.example:1337")

	env, _, err := cryptoengine.Seal(cryptoengine.SealRequest{
		Sender:     alice,
		Receiver:   &bob.Vid,
		CryptoType: cesr.CryptoHpkeEssr,
		Payload:    definitions.Content("secret"),
	})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	// A relay that rewrites the outer sender field now breaks decryption
	// outright: the sender field is bound into the AEAD's associated data,
	// so a forged header no longer matches the tag HpkeSeal produced.
	env.Sender = eve.Identifier()

	_, err = cryptoengine.Open(cryptoengine.OpenRequest{
		Envelope: env,
		Receiver: bob,
	})
	if !errors.Is(err, cryptoengine.ErrOpenFailed) {
		t.Fatalf("expected ErrOpenFailed on a rewritten sender field, got %v", err)
	}
}

func TestSignatureVerifiedBeforeDecryption(t *testing.T) {
	alice := mustVid(t, "tcp://alice.example:1337")
	bob := mustVid(t, "tcp://bob.example:1337")

	env, _, err := cryptoengine.Seal(cryptoengine.SealRequest{
		Sender:        alice,
		Receiver:      &bob.Vid,
		CryptoType:    cesr.CryptoHpkeAuth,
		SignatureType: cesr.SignatureEd25519,
		Payload:       definitions.Content("hello"),
	})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	// Tamper the signature and truncate the ciphertext below the minimum
	// HPKE needs (it must carry at least a 32-byte encapped key). If Open
	// decrypted before verifying, it would fail on the truncated ciphertext
	// ("ciphertext shorter than an encapped key") without ever reaching the
	// signature check. Verifying first must report the signature failure
	// instead, since the ciphertext is never touched.
	env.Signature[0] ^= 0xff
	env.Ciphertext = env.Ciphertext[:8]

	_, err = cryptoengine.Open(cryptoengine.OpenRequest{
		Envelope: env,
		Sender:   &alice.Vid,
		Receiver: bob,
	})
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if strings.Contains(err.Error(), "encapped key") {
		t.Fatalf("decryption ran before signature verification: %v", err)
	}
	if !errors.Is(err, cryptoengine.ErrOpenFailed) {
		t.Fatalf("expected ErrOpenFailed from signature verification, got %v", err)
	}
}

func TestSignatureTamperDetected(t *testing.T) {
	alice := mustVid(t, "tcp://alice.example:1337")
	bob := mustVid(t, "tcp://bob.example:1337")

	env, _, err := cryptoengine.Seal(cryptoengine.SealRequest{
		Sender:        alice,
		Receiver:      &bob.Vid,
		CryptoType:    cesr.CryptoPlaintext,
		SignatureType: cesr.SignatureEd25519,
		Payload:       definitions.Content("hello"),
	})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	env.Signature[0] ^= 0xff

	_, err = cryptoengine.Open(cryptoengine.OpenRequest{
		Envelope: env,
		Sender:   &alice.Vid,
		Receiver: bob,
	})
	if !errors.Is(err, cryptoengine.ErrOpenFailed) {
		t.Fatalf("expected ErrOpenFailed on tampered signature, got %v", err)
	}
}
