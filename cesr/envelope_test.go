package cesr

import "testing"

func TestEnvelopeRoundtripUnsigned(t *testing.T) {
	e := &Envelope{
		Sender:              "did:peer:2.Vz6Malice",
		Receiver:            "did:peer:2.Vz6Mbob",
		CryptoType:          CryptoHpkeAuth,
		SignatureType:       SignatureNone,
		NonconfidentialData: []byte("hi"),
		Ciphertext:          []byte("sealed-bytes-here"),
	}
	wire := EncodeEnvelope(e)
	// An encrypted, unsigned envelope is just the -E wrapper: no -C/-K
	// attachment group should follow it.
	body, consumed, ok := decodeGroup(etsGroupIdent, wire, NonStrict)
	if !ok || body == nil {
		t.Fatalf("expected a well-formed -E wrapper")
	}
	if consumed != len(wire) {
		t.Fatalf("expected no attachment group after an unsigned envelope, consumed %d of %d bytes", consumed, len(wire))
	}

	got, n, err := DecodeEnvelope(wire)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("consumed = %d, want %d", n, len(wire))
	}
	if got.Sender != e.Sender || got.Receiver != e.Receiver || got.CryptoType != e.CryptoType {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, e)
	}
	if !bytesEqual(got.Ciphertext, e.Ciphertext) || !bytesEqual(got.NonconfidentialData, e.NonconfidentialData) {
		t.Fatalf("round-trip field mismatch: got %+v, want %+v", got, e)
	}
}

func TestEnvelopeRoundtripSignedUsesSGroup(t *testing.T) {
	e := &Envelope{
		Sender:        "did:peer:2.Vz6Malice",
		CryptoType:    CryptoPlaintext,
		SignatureType: SignatureEd25519,
		Ciphertext:    []byte("signed content"),
	}
	unsigned := EncodeEnvelope(e)
	// Plaintext (signed-only) envelopes use the -S wrapper, not -E.
	if _, _, ok := decodeGroup(signedGroupIdent, unsigned, NonStrict); !ok {
		t.Fatalf("expected a -S wrapper for a plaintext/signed-only envelope")
	}

	e.Signature = make([]byte, 64) // Ed25519 signature length
	for i := range e.Signature {
		e.Signature[i] = byte(i)
	}
	wire := EncodeEnvelope(e)

	got, n, err := DecodeEnvelope(wire)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("consumed = %d, want %d", n, len(wire))
	}
	if !bytesEqual(got.Signature, e.Signature) {
		t.Fatalf("signature round-trip mismatch: got %x, want %x", got.Signature, e.Signature)
	}
}

func TestDecodeEnvelopeRejectsMissingWrapper(t *testing.T) {
	if _, _, err := DecodeEnvelope([]byte("not a cesr stream")); err == nil {
		t.Fatal("expected an error decoding a stream with no -E/-S wrapper")
	}
}

func TestPayloadRoundtripUsesZWrapper(t *testing.T) {
	p := GenericMessage("hello")
	wire := EncodePayload(p)
	if _, _, ok := decodeGroup(payloadGroupIdent, wire, NonStrict); !ok {
		t.Fatalf("expected a -Z payload wrapper")
	}

	got, n, err := DecodePayload(wire)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("consumed = %d, want %d", n, len(wire))
	}
	gm, ok := got.(GenericMessage)
	if !ok || !bytesEqual(gm, p) {
		t.Fatalf("round-trip mismatch: got %#v, want %#v", got, p)
	}
}

func TestPayloadRoundtripRoutedMessage(t *testing.T) {
	p := RoutedMessage{Hops: []string{"did:peer:2.Va", "did:peer:2.Vb"}, Message: []byte("inner")}
	wire := EncodePayload(p)
	got, n, err := DecodePayload(wire)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("consumed = %d, want %d", n, len(wire))
	}
	rm, ok := got.(RoutedMessage)
	if !ok || len(rm.Hops) != 2 || rm.Hops[0] != p.Hops[0] || rm.Hops[1] != p.Hops[1] || !bytesEqual(rm.Message, p.Message) {
		t.Fatalf("round-trip mismatch: got %#v, want %#v", got, p)
	}
}
