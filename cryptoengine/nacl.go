package cryptoengine

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// NaCl variant: X25519 + XSalsa20-Poly1305 (golang.org/x/crypto/nacl/box),
// the direct analogue of the reference implementation's crypto_box::ChaChaBox
// usage. A fresh 24-byte nonce is generated per message. box.Seal writes the
// 16-byte Poly1305 tag in front of the encrypted payload, so the wire
// ciphertext layout here is tag(16) || encrypted_payload || nonce(24); the
// tag does not follow the payload. The NaCl box primitive has no associated-data
// parameter, a known limitation inherited from the reference implementation
// — nonconfidential data is carried in the clear alongside the envelope
// instead of bound into the AEAD tag.
func NaclSeal(receiverPub [32]byte, senderPriv [32]byte, plaintext []byte) (ciphertext []byte, err error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("cryptoengine: generate nonce: %w", err)
	}
	sealed := box.Seal(nil, plaintext, &nonce, &receiverPub, &senderPriv)
	return append(sealed, nonce[:]...), nil
}

// NaclOpen reverses NaclSeal. ciphertext must end with its 24-byte nonce.
func NaclOpen(senderPub [32]byte, receiverPriv [32]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, fmt.Errorf("cryptoengine: %w: ciphertext shorter than a nonce", ErrOpenFailed)
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[len(ciphertext)-24:])
	sealed := ciphertext[:len(ciphertext)-24]

	plaintext, ok := box.Open(nil, sealed, &nonce, &senderPub, &receiverPriv)
	if !ok {
		return nil, fmt.Errorf("cryptoengine: %w", ErrOpenFailed)
	}
	return plaintext, nil
}

// NaclSealEssr seals plaintext under a freshly generated ephemeral key
// instead of the real sender's static key, so the ciphertext carries no
// link to the sender's identity at the KEM layer (the real sender travels
// inside the AEAD-protected plaintext instead, see essrEncode). Unlike
// HpkeSeal's Base mode, NaCl's box primitive always needs *a* private
// scalar to compute the shared secret, so the one-time ephemeral public key
// is carried on the wire the same way HPKE carries its encapped key:
// appended after the nonce.
func NaclSealEssr(receiverPub [32]byte, plaintext []byte) (ciphertext []byte, err error) {
	ephPriv, err := ephemeralX25519()
	if err != nil {
		return nil, err
	}
	var ephPub [32]byte
	curve25519.ScalarBaseMult(&ephPub, &ephPriv)

	sealed, err := NaclSeal(receiverPub, ephPriv, plaintext)
	if err != nil {
		return nil, err
	}
	return append(sealed, ephPub[:]...), nil
}

// NaclOpenEssr reverses NaclSealEssr: ciphertext must end with the 32-byte
// ephemeral sender public key, followed further back by the 24-byte nonce
// (both appended by NaclSealEssr/NaclSeal).
func NaclOpenEssr(receiverPriv [32]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 32 {
		return nil, fmt.Errorf("cryptoengine: %w: ciphertext shorter than an ephemeral key", ErrOpenFailed)
	}
	var ephPub [32]byte
	copy(ephPub[:], ciphertext[len(ciphertext)-32:])
	return NaclOpen(ephPub, receiverPriv, ciphertext[:len(ciphertext)-32])
}

// ephemeralX25519 generates a fresh X25519 private scalar, used as the
// throwaway "sender" key for NaCl ESSR sealing.
func ephemeralX25519() ([32]byte, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return priv, fmt.Errorf("cryptoengine: generate ephemeral key: %w", err)
	}
	return priv, nil
}
