package cryptoengine

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cvsouth/tsp-go/cesr"
	"github.com/cvsouth/tsp-go/definitions"
)

var essrSenderFieldIdent = cesr.Ident("z")

// essrEncode prefixes body with a CESR field carrying the real sender's
// identifier, the embedded-sender half of ESSR.
func essrEncode(senderID string, body []byte) []byte {
	var out []byte
	out = cesr.EncodeField(essrSenderFieldIdent, []byte(senderID), out)
	out = append(out, body...)
	return out
}

func essrDecode(data []byte) (senderID string, body []byte, err error) {
	id, consumed, err := cesr.DecodeField(essrSenderFieldIdent, data)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMissingSender, err)
	}
	return string(id), data[consumed:], nil
}

func to32(b []byte, what string) ([32]byte, error) {
	var out [32]byte
	if len(b) != 32 {
		return out, fmt.Errorf("cryptoengine: %s must be 32 bytes, got %d", what, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func digestFnForCryptoType(ct cesr.CryptoType) func([]byte) [32]byte {
	switch ct {
	case cesr.CryptoNaclAuth, cesr.CryptoNaclEssr:
		return Blake2b256Digest
	default:
		return Sha256Digest
	}
}

// SealRequest describes a message to seal.
type SealRequest struct {
	Sender              definitions.PrivateVid
	Receiver            definitions.VerifiedVid
	CryptoType          cesr.CryptoType
	SignatureType       cesr.SignatureType
	NonconfidentialData []byte
	Payload             definitions.Payload
}

// Seal encrypts (or, for CryptoPlaintext, simply frames) req.Payload for
// req.Receiver from req.Sender, returning the wire envelope and the
// payload's thread-ID digest (zero for payloads that carry none).
func Seal(req SealRequest) (*cesr.Envelope, [32]byte, error) {
	wirePayload, digest, err := toWire(req.Payload, digestFnForCryptoType(req.CryptoType))
	if err != nil {
		return nil, digest, err
	}
	plaintext := cesr.EncodePayload(wirePayload)

	essr := req.CryptoType == cesr.CryptoHpkeEssr || req.CryptoType == cesr.CryptoNaclEssr ||
		req.CryptoType == cesr.CryptoX25519Kyber768Draft00
	if essr {
		plaintext = essrEncode(req.Sender.Identifier(), plaintext)
	}

	env := &cesr.Envelope{
		Sender:              req.Sender.Identifier(),
		Receiver:            req.Receiver.Identifier(),
		CryptoType:          req.CryptoType,
		SignatureType:       req.SignatureType,
		NonconfidentialData: req.NonconfidentialData,
	}
	// aad is the raw envelope header — every field up to but excluding the
	// ciphertext — bound into the AEAD tag of the HPKE variants so a relay
	// can't rewrite their outer header without breaking decryption. The NaCl
	// variants take no associated data and do not use it.
	aad := cesr.EncodeEnvelopeHeader(env)

	switch req.CryptoType {
	case cesr.CryptoPlaintext:
		env.Ciphertext = plaintext

	case cesr.CryptoHpkeAuth, cesr.CryptoHpkeEssr:
		receiverPub, err := to32(req.Receiver.PublicEncKey(), "receiver encryption key")
		if err != nil {
			return nil, digest, err
		}
		var senderPriv *[32]byte
		if req.CryptoType == cesr.CryptoHpkeAuth {
			p, err := to32(req.Sender.DecryptionKey(), "sender decryption key")
			if err != nil {
				return nil, digest, err
			}
			senderPriv = &p
		}
		ciphertext, encapped, err := HpkeSeal(receiverPub, senderPriv, aad, plaintext)
		if err != nil {
			return nil, digest, err
		}
		env.Ciphertext = append(ciphertext, encapped[:]...)

	case cesr.CryptoNaclAuth:
		receiverPub, err := to32(req.Receiver.PublicEncKey(), "receiver encryption key")
		if err != nil {
			return nil, digest, err
		}
		senderPriv, err := to32(req.Sender.DecryptionKey(), "sender decryption key")
		if err != nil {
			return nil, digest, err
		}
		ciphertext, err := NaclSeal(receiverPub, senderPriv, plaintext)
		if err != nil {
			return nil, digest, err
		}
		env.Ciphertext = ciphertext

	case cesr.CryptoNaclEssr:
		receiverPub, err := to32(req.Receiver.PublicEncKey(), "receiver encryption key")
		if err != nil {
			return nil, digest, err
		}
		ciphertext, err := NaclSealEssr(receiverPub, plaintext)
		if err != nil {
			return nil, digest, err
		}
		env.Ciphertext = ciphertext

	case cesr.CryptoX25519Kyber768Draft00:
		return nil, digest, ErrUnsupportedVariant

	default:
		return nil, digest, fmt.Errorf("cryptoengine: unknown crypto type %d", req.CryptoType)
	}

	if req.SignatureType == cesr.SignatureEd25519 {
		unsigned := *env
		unsigned.Signature = nil
		sig, err := req.Sender.Sign(cesr.EncodeEnvelope(&unsigned))
		if err != nil {
			return nil, digest, fmt.Errorf("cryptoengine: sign envelope: %w", err)
		}
		env.Signature = sig
	} else if req.SignatureType == cesr.SignatureMlDsa65 {
		return nil, digest, ErrUnsupportedVariant
	}

	return env, digest, nil
}

// OpenRequest describes a received envelope to open. Receiver is nil for a
// signed-only message addressed to no one in particular.
type OpenRequest struct {
	Envelope *cesr.Envelope
	Sender   definitions.VerifiedVid
	Receiver definitions.PrivateVid
}

// OpenResult is the decrypted/verified outcome of Open.
type OpenResult struct {
	Payload          definitions.Payload
	EmbeddedSenderID string // set for ESSR variants; equals Envelope.Sender otherwise
}

// Open verifies and/or decrypts req.Envelope, dispatching on its CryptoType,
// and checks the ESSR embedded-sender invariant when applicable.
func Open(req OpenRequest) (*OpenResult, error) {
	env := req.Envelope
	essr := env.CryptoType == cesr.CryptoHpkeEssr || env.CryptoType == cesr.CryptoNaclEssr ||
		env.CryptoType == cesr.CryptoX25519Kyber768Draft00

	// Verify before touching the ciphertext: an attacker who can forge a
	// valid-looking envelope but not a valid signature must not get to run
	// any ciphertext through the AEAD at all.
	if env.SignatureType == cesr.SignatureEd25519 {
		unsigned := *env
		unsigned.Signature = nil
		pub, cerr := to32AsEd25519(req.Sender.PublicSigKey())
		if cerr != nil {
			return nil, cerr
		}
		if err := Verify(pub, cesr.EncodeEnvelope(&unsigned), env.Signature); err != nil {
			return nil, err
		}
	} else if env.SignatureType == cesr.SignatureMlDsa65 {
		return nil, ErrUnsupportedVariant
	}

	// aad mirrors the bytes Seal bound in: the raw header up to but
	// excluding the ciphertext field.
	aad := cesr.EncodeEnvelopeHeader(env)

	var plaintext []byte
	var err error

	switch env.CryptoType {
	case cesr.CryptoPlaintext:
		plaintext = env.Ciphertext

	case cesr.CryptoHpkeAuth, cesr.CryptoHpkeEssr:
		if len(env.Ciphertext) < 32 {
			return nil, fmt.Errorf("cryptoengine: %w: ciphertext shorter than an encapped key", ErrOpenFailed)
		}
		encapped, body := env.Ciphertext[len(env.Ciphertext)-32:], env.Ciphertext[:len(env.Ciphertext)-32]
		var encappedKey [32]byte
		copy(encappedKey[:], encapped)

		receiverPriv, cerr := to32(req.Receiver.DecryptionKey(), "receiver decryption key")
		if cerr != nil {
			return nil, cerr
		}
		var senderPub *[32]byte
		if env.CryptoType == cesr.CryptoHpkeAuth {
			p, cerr := to32(req.Sender.PublicEncKey(), "sender encryption key")
			if cerr != nil {
				return nil, cerr
			}
			senderPub = &p
		}
		plaintext, err = HpkeOpen(encappedKey, receiverPriv, senderPub, aad, body)

	case cesr.CryptoNaclAuth:
		receiverPriv, cerr := to32(req.Receiver.DecryptionKey(), "receiver decryption key")
		if cerr != nil {
			return nil, cerr
		}
		senderPub, cerr := to32(req.Sender.PublicEncKey(), "sender encryption key")
		if cerr != nil {
			return nil, cerr
		}
		plaintext, err = NaclOpen(senderPub, receiverPriv, env.Ciphertext)

	case cesr.CryptoNaclEssr:
		receiverPriv, cerr := to32(req.Receiver.DecryptionKey(), "receiver decryption key")
		if cerr != nil {
			return nil, cerr
		}
		plaintext, err = NaclOpenEssr(receiverPriv, env.Ciphertext)

	case cesr.CryptoX25519Kyber768Draft00:
		return nil, ErrUnsupportedVariant

	default:
		return nil, fmt.Errorf("cryptoengine: unknown crypto type %d", env.CryptoType)
	}
	if err != nil {
		return nil, err
	}

	result := &OpenResult{EmbeddedSenderID: env.Sender}
	if essr {
		senderID, body, err := essrDecode(plaintext)
		if err != nil {
			return nil, err
		}
		if senderID == "" {
			return nil, ErrMissingSender
		}
		if senderID != env.Sender {
			return nil, ErrUnexpectedSender
		}
		result.EmbeddedSenderID = senderID
		plaintext = body
	}

	wirePayload, _, err := cesr.DecodePayload(plaintext)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: decode payload: %w", err)
	}
	payload, err := fromWire(wirePayload, digestFnForCryptoType(env.CryptoType))
	if err != nil {
		return nil, err
	}
	result.Payload = payload
	return result, nil
}

func to32AsEd25519(b []byte) (ed25519.PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("cryptoengine: signing key must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return ed25519.PublicKey(b), nil
}
