package cryptoengine

import (
	"crypto/ed25519"
	"fmt"
)

// Sign signs message with an Ed25519 private key, matching spec's
// SignAnycast (a signed-only, recipient-less message).
func Sign(key ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(key, message)
}

// Verify checks an Ed25519 signature. It handles Ed25519 keys only; PQ
// signature types are rejected with ErrUnsupportedVariant by Open before it
// gets here.
func Verify(pub ed25519.PublicKey, message, signature []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("cryptoengine: bad public key length %d", len(pub))
	}
	if !ed25519.Verify(pub, message, signature) {
		return fmt.Errorf("cryptoengine: %w", ErrOpenFailed)
	}
	return nil
}
