package cryptoengine

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Single-shot HPKE (RFC 9180) over DHKEM(X25519, HKDF-SHA256) with a
// ChaCha20-Poly1305 AEAD, in Base mode (unauthenticated KEM, used for ESSR
// and PQ-tagged messages where sender authentication lives in the signed
// plaintext instead) and Auth mode (KEM-level sender authentication, used
// for classical non-ESSR messages). This implements exactly the one-shot
// seal/open the wallet needs and does not expose HPKE's streaming export or
// PSK modes, which this protocol has no use for.
const (
	kemIDX25519HKDFSHA256  = 0x0020
	kdfIDHKDFSHA256        = 0x0001
	aeadIDChaCha20Poly1305 = 0x0003
)

func i2osp2(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func labeledExtract(suiteID string, salt []byte, label string, ikm []byte) []byte {
	labeledIKM := append([]byte("HPKE-v1"), suiteID...)
	labeledIKM = append(labeledIKM, label...)
	labeledIKM = append(labeledIKM, ikm...)
	return hkdf.Extract(newSHA256, labeledIKM, salt)
}

func labeledExpand(suiteID string, prk []byte, label string, info []byte, length int) []byte {
	labeledInfo := append(i2osp2(uint16(length)), []byte("HPKE-v1")...)
	labeledInfo = append(labeledInfo, suiteID...)
	labeledInfo = append(labeledInfo, label...)
	labeledInfo = append(labeledInfo, info...)
	out := make([]byte, length)
	r := hkdf.Expand(newSHA256, prk, labeledInfo)
	if _, err := r.Read(out); err != nil {
		panic(fmt.Sprintf("cryptoengine: hkdf expand: %v", err))
	}
	return out
}

func kemSuiteID() string {
	return "KEM" + string(i2osp2(kemIDX25519HKDFSHA256))
}

func hpkeSuiteID() string {
	s := "HPKE"
	s += string(i2osp2(kemIDX25519HKDFSHA256))
	s += string(i2osp2(kdfIDHKDFSHA256))
	s += string(i2osp2(aeadIDChaCha20Poly1305))
	return s
}

func extractAndExpandDH(dh []byte, kemContext []byte) []byte {
	eaePRK := labeledExtract(kemSuiteID(), nil, "eae_prk", dh)
	return labeledExpand(kemSuiteID(), eaePRK, "shared_secret", kemContext, 32)
}

// hpkeEncap performs the sender side of DHKEM: it generates an ephemeral
// X25519 keypair, computes the shared secret against the receiver's public
// key (and, in Auth mode, additionally authenticated by the sender's static
// private key), and returns the encapsulated key (the ephemeral public key)
// alongside the shared secret.
func hpkeEncap(receiverPub [32]byte, senderPriv *[32]byte) (encappedKey [32]byte, sharedSecret []byte, err error) {
	var ephPriv [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return encappedKey, nil, fmt.Errorf("cryptoengine: generate ephemeral key: %w", err)
	}
	curve25519.ScalarBaseMult(&encappedKey, &ephPriv)

	dh, err := curve25519.X25519(ephPriv[:], receiverPub[:])
	if err != nil {
		return encappedKey, nil, fmt.Errorf("cryptoengine: ephemeral DH: %w", err)
	}
	kemContext := append(append([]byte{}, encappedKey[:]...), receiverPub[:]...)

	if senderPriv != nil {
		var senderPub [32]byte
		curve25519.ScalarBaseMult(&senderPub, senderPriv)
		authDH, err := curve25519.X25519(senderPriv[:], receiverPub[:])
		if err != nil {
			return encappedKey, nil, fmt.Errorf("cryptoengine: auth DH: %w", err)
		}
		dh = append(dh, authDH...)
		kemContext = append(kemContext, senderPub[:]...)
	}

	return encappedKey, extractAndExpandDH(dh, kemContext), nil
}

// hpkeDecap is the receiver-side counterpart of hpkeEncap.
func hpkeDecap(encappedKey [32]byte, receiverPriv [32]byte, senderPub *[32]byte) ([]byte, error) {
	dh, err := curve25519.X25519(receiverPriv[:], encappedKey[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: ephemeral DH: %w", err)
	}
	var receiverPubKey [32]byte
	curve25519.ScalarBaseMult(&receiverPubKey, &receiverPriv)
	kemContext := append(append([]byte{}, encappedKey[:]...), receiverPubKey[:]...)

	if senderPub != nil {
		authDH, err := curve25519.X25519(receiverPriv[:], senderPub[:])
		if err != nil {
			return nil, fmt.Errorf("cryptoengine: auth DH: %w", err)
		}
		dh = append(dh, authDH...)
		kemContext = append(kemContext, senderPub[:]...)
	}

	return extractAndExpandDH(dh, kemContext), nil
}

// keySchedule derives the AEAD key and base nonce from the KEM shared
// secret, mirroring RFC 9180 §5.1's base-mode key schedule (mode byte 0x00
// for Base, 0x02 for Auth — this repo has no PSK use, so modes 0x01/0x03
// never occur).
func keySchedule(mode byte, sharedSecret, info []byte) (key [32]byte, baseNonce [12]byte) {
	suiteID := hpkeSuiteID()
	pskIDHash := labeledExtract(suiteID, nil, "psk_id_hash", nil)
	infoHash := labeledExtract(suiteID, nil, "info_hash", info)
	keyScheduleContext := append([]byte{mode}, pskIDHash...)
	keyScheduleContext = append(keyScheduleContext, infoHash...)

	secret := labeledExtract(suiteID, sharedSecret, "secret", nil)
	k := labeledExpand(suiteID, secret, "key", keyScheduleContext, 32)
	n := labeledExpand(suiteID, secret, "base_nonce", keyScheduleContext, 12)
	copy(key[:], k)
	copy(baseNonce[:], n)
	return key, baseNonce
}

const (
	hpkeModeBase = 0x00
	hpkeModeAuth = 0x02
)

// HpkeSeal seals plaintext to receiverPub, authenticating it by possession
// of senderPriv when Auth mode is requested (ESSR is off) or leaving KEM
// authentication out when not (ESSR is on, or a PQ variant is tagged —
// sender identity then lives in the signed plaintext). It returns the
// ciphertext with its AEAD tag appended, and the encapsulated ephemeral key.
func HpkeSeal(receiverPub [32]byte, senderPriv *[32]byte, aad, plaintext []byte) (ciphertext []byte, encappedKey [32]byte, err error) {
	mode := byte(hpkeModeBase)
	if senderPriv != nil {
		mode = hpkeModeAuth
	}

	encappedKey, sharedSecret, err := hpkeEncap(receiverPub, senderPriv)
	if err != nil {
		return nil, encappedKey, err
	}
	key, nonce := keySchedule(mode, sharedSecret, nil)

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, encappedKey, fmt.Errorf("cryptoengine: aead init: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce[:], plaintext, aad)
	return ciphertext, encappedKey, nil
}

// HpkeOpen opens a ciphertext produced by HpkeSeal.
func HpkeOpen(encappedKey [32]byte, receiverPriv [32]byte, senderPub *[32]byte, aad, ciphertext []byte) ([]byte, error) {
	mode := byte(hpkeModeBase)
	if senderPub != nil {
		mode = hpkeModeAuth
	}

	sharedSecret, err := hpkeDecap(encappedKey, receiverPriv, senderPub)
	if err != nil {
		return nil, err
	}
	key, nonce := keySchedule(mode, sharedSecret, nil)

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: aead init: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: %w", ErrOpenFailed)
	}
	return plaintext, nil
}
