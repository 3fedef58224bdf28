package vid

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// Multikey prefix bytes, per the multicodec table the reference
// implementation encodes against. Each is a 2-byte (or, for the PQ variants,
// 4+2-byte) varint prefix immediately followed by the raw key bytes, then
// base58(Bitcoin alphabet)-encoded with a 'V' or 'E' + 'z' marker.
var (
	prefixEd25519Pub = []byte{0xed, 0x20}
	prefixX25519Pub  = []byte{0xec, 0x20}

	// Recognized but unimplemented: ML-DSA-65 and X25519Kyber768Draft00.
	prefixMlDsa65Pub               = []byte{0x81, 0x80, 0xc0, 0x01, 0xa0, 0x0f}
	prefixX25519Kyber768Draft00Pub = []byte{0x80, 0x80, 0xc0, 0x01, 0xc0, 0x09}
)

// ErrUnsupportedKeyType is returned by ParseDIDPeer for a recognized but
// unimplemented post-quantum multicodec prefix.
var ErrUnsupportedKeyType = errors.New("vid: post-quantum key type not implemented")

// ErrMalformedDIDPeer covers any did:peer string that doesn't parse.
var ErrMalformedDIDPeer = errors.New("vid: malformed did:peer identifier")

type didService struct {
	T string `json:"t"`
	S struct {
		URI string `json:"uri"`
	} `json:"s"`
}

// EncodeDIDPeer builds a did:peer:2.Vz<verkey>.Ez<enckey>.S<service>
// identifier from an Ed25519 verification key, an X25519 encryption key, and
// a transport endpoint URI.
func EncodeDIDPeer(sigKey ed25519.PublicKey, encKey [32]byte, endpoint string) (string, error) {
	if len(sigKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("vid: signing key must be %d bytes", ed25519.PublicKeySize)
	}

	verkeyBytes := append(append([]byte{}, prefixEd25519Pub...), sigKey...)
	enckeyBytes := append(append([]byte{}, prefixX25519Pub...), encKey[:]...)

	svc := didService{T: "tsp"}
	svc.S.URI = endpoint
	svcJSON, err := json.Marshal(svc)
	if err != nil {
		return "", fmt.Errorf("vid: encode service segment: %w", err)
	}
	svcB64 := base64.RawURLEncoding.EncodeToString(svcJSON)

	return fmt.Sprintf("did:peer:2.Vz%s.Ez%s.S%s",
		base58.Encode(verkeyBytes), base58.Encode(enckeyBytes), svcB64), nil
}

// ParseDIDPeer decodes a did:peer:2.Vz<...>.Ez<...>.S<...> identifier back
// into its verification key, encryption key, and transport endpoint.
func ParseDIDPeer(id string) (sigKey ed25519.PublicKey, encKey [32]byte, endpoint string, err error) {
	const prefix = "did:peer:2."
	if !strings.HasPrefix(id, prefix) {
		return nil, encKey, "", fmt.Errorf("%w: missing did:peer:2. prefix", ErrMalformedDIDPeer)
	}
	parts := strings.Split(strings.TrimPrefix(id, prefix), ".")

	var haveSig, haveEnc, haveSvc bool
	for _, part := range parts {
		if len(part) < 2 {
			return nil, encKey, "", fmt.Errorf("%w: empty path segment", ErrMalformedDIDPeer)
		}
		tag, rest := part[:1], part[1:]
		switch tag {
		case "V":
			if len(rest) < 2 || rest[:1] != "z" {
				return nil, encKey, "", fmt.Errorf("%w: unsupported verification key encoding", ErrMalformedDIDPeer)
			}
			decoded := base58.Decode(rest[1:])
			switch {
			case hasPrefix(decoded, prefixEd25519Pub):
				sigKey = ed25519.PublicKey(decoded[len(prefixEd25519Pub):])
			case hasPrefix(decoded, prefixMlDsa65Pub):
				return nil, encKey, "", ErrUnsupportedKeyType
			default:
				return nil, encKey, "", fmt.Errorf("%w: unrecognized verification key prefix", ErrMalformedDIDPeer)
			}
			haveSig = true
		case "E":
			if len(rest) < 2 || rest[:1] != "z" {
				return nil, encKey, "", fmt.Errorf("%w: unsupported encryption key encoding", ErrMalformedDIDPeer)
			}
			decoded := base58.Decode(rest[1:])
			switch {
			case hasPrefix(decoded, prefixX25519Pub):
				copy(encKey[:], decoded[len(prefixX25519Pub):])
			case hasPrefix(decoded, prefixX25519Kyber768Draft00Pub):
				return nil, encKey, "", ErrUnsupportedKeyType
			default:
				return nil, encKey, "", fmt.Errorf("%w: unrecognized encryption key prefix", ErrMalformedDIDPeer)
			}
			haveEnc = true
		case "S":
			raw, derr := base64.RawURLEncoding.DecodeString(rest)
			if derr != nil {
				return nil, encKey, "", fmt.Errorf("%w: service segment: %v", ErrMalformedDIDPeer, derr)
			}
			var svc didService
			if err := json.Unmarshal(raw, &svc); err != nil {
				return nil, encKey, "", fmt.Errorf("%w: service segment json: %v", ErrMalformedDIDPeer, err)
			}
			endpoint = svc.S.URI
			haveSvc = true
		default:
			return nil, encKey, "", fmt.Errorf("%w: unrecognized segment tag %q", ErrMalformedDIDPeer, tag)
		}
	}

	if !haveSig || !haveEnc || !haveSvc {
		return nil, encKey, "", fmt.Errorf("%w: missing required segment", ErrMalformedDIDPeer)
	}
	return sigKey, encKey, endpoint, nil
}

func hasPrefix(data, prefix []byte) bool {
	if len(data) < len(prefix) {
		return false
	}
	for i := range prefix {
		if data[i] != prefix[i] {
			return false
		}
	}
	return true
}

// ParseEndpoint is a small helper Wallet uses when binding a VID's transport
// endpoint from its did:peer service segment.
func ParseEndpoint(raw string) (*url.URL, error) {
	return url.Parse(raw)
}
