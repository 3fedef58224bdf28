// Package vid implements Trust Spanning Protocol verifiable identifiers: a
// Vid carries the public keys and transport endpoint needed to address and
// verify messages to/from an identity; an OwnedVid additionally holds the
// private keys needed to seal and sign as that identity.
package vid

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/url"

	"golang.org/x/crypto/curve25519"
)

// SigKeyType and EncKeyType identify the multicodec family used for a VID's
// signing or encryption key. The PQ variants are recognized on the wire but have no
// implemented primitive (see ParseDIDPeer).
type SigKeyType uint8

const (
	SigKeyEd25519 SigKeyType = iota
	SigKeyMlDsa65             // recognized, unimplemented
)

type EncKeyType uint8

const (
	EncKeyX25519 EncKeyType = iota
	EncKeyX25519Kyber768Draft00 // recognized, unimplemented
)

// Vid is a verified identity: its public keys and transport endpoint are
// known, but its private keys are not necessarily held by this process.
type Vid struct {
	ID         string
	Transport  *url.URL
	SigKeyType SigKeyType
	SigKey     ed25519.PublicKey
	EncKeyType EncKeyType
	EncKey     [32]byte
}

func (v *Vid) Identifier() string       { return v.ID }
func (v *Vid) Endpoint() string         { return v.Transport.String() }
func (v *Vid) PublicSigKey() []byte     { return v.SigKey }
func (v *Vid) PublicEncKey() []byte     { return v.EncKey[:] }

// OwnedVid is a Vid this process holds the private keys for.
type OwnedVid struct {
	Vid
	sigKey ed25519.PrivateKey
	encKey [32]byte // X25519 private scalar
}

// GoString redacts private key material from debug output, mirroring the
// reference implementation's custom Debug impl for PrivateVid.
func (o *OwnedVid) GoString() string {
	return fmt.Sprintf("OwnedVid{vid: %q, sigkey: \"<secret>\", enckey: \"<secret>\"}", o.ID)
}

func (o *OwnedVid) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(o.sigKey, message), nil
}

func (o *OwnedVid) DecryptionKey() []byte {
	return o.encKey[:]
}

// SigningKey returns the raw Ed25519 private key, for export/import only —
// ordinary signing should go through Sign.
func (o *OwnedVid) SigningKey() ed25519.PrivateKey {
	return o.sigKey
}

// Close zeroes the private key material held by this OwnedVid. Callers that
// no longer need the keys (e.g. after exporting to a secret store) should
// call this explicitly; there is no finalizer.
func (o *OwnedVid) Close() {
	for i := range o.sigKey {
		o.sigKey[i] = 0
	}
	for i := range o.encKey {
		o.encKey[i] = 0
	}
}

// NewDIDPeer generates a fresh Ed25519/X25519 keypair and returns an
// OwnedVid whose identifier is the resulting did:peer string bound to
// transport.
func NewDIDPeer(transport *url.URL) (*OwnedVid, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("vid: generate signing key: %w", err)
	}

	var encPriv, encPub [32]byte
	if _, err := rand.Read(encPriv[:]); err != nil {
		return nil, fmt.Errorf("vid: generate encryption key: %w", err)
	}
	curve25519.ScalarBaseMult(&encPub, &encPriv)

	o := &OwnedVid{
		Vid: Vid{
			Transport:  transport,
			SigKeyType: SigKeyEd25519,
			SigKey:     pub,
			EncKeyType: EncKeyX25519,
			EncKey:     encPub,
		},
		sigKey: priv,
		encKey: encPriv,
	}
	id, err := EncodeDIDPeer(o.Vid.SigKey, o.Vid.EncKey, transport.String())
	if err != nil {
		return nil, fmt.Errorf("vid: encode did:peer: %w", err)
	}
	o.ID = id
	return o, nil
}

// Bind wraps an already-known Vid identifier with the supplied private keys,
// deriving the public keys from them; it does not check them against the
// identifier. Used when importing an exported OwnedVid whose identifier was
// minted elsewhere.
func Bind(id string, transport *url.URL, sigKey ed25519.PrivateKey, encKey [32]byte) *OwnedVid {
	pub := sigKey.Public().(ed25519.PublicKey)
	var encPub [32]byte
	curve25519.ScalarBaseMult(&encPub, &encKey)
	return &OwnedVid{
		Vid: Vid{
			ID:         id,
			Transport:  transport,
			SigKeyType: SigKeyEd25519,
			SigKey:     pub,
			EncKeyType: EncKeyX25519,
			EncKey:     encPub,
		},
		sigKey: sigKey,
		encKey: encKey,
	}
}

// ExportVid is the flat, JSON-serializable record used by the wallet's
// export/import operations: a verified VID's public material plus, when
// present, its private keys and wallet-local relationship bookkeeping.
type ExportVid struct {
	ID           string  `json:"id"`
	Transport    string  `json:"transport"`
	SigKeyType   SigKeyType `json:"sig_key_type"`
	PublicSigKey []byte  `json:"public_sigkey"`
	EncKeyType   EncKeyType `json:"enc_key_type"`
	PublicEncKey []byte  `json:"public_enckey"`
	SigKey       []byte  `json:"sigkey,omitempty"`
	EncKey       []byte  `json:"enckey,omitempty"`

	RelationStatus   string   `json:"relation_status,omitempty"`
	RelationThreadID []byte   `json:"relation_thread_id,omitempty"`
	RelationVid      string   `json:"relation_vid,omitempty"`
	ParentVid        string   `json:"parent_vid,omitempty"`
	Tunnel           []string `json:"tunnel,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

// IsPrivate reports whether both private key fields are present.
func (e *ExportVid) IsPrivate() bool {
	return len(e.SigKey) == ed25519.PrivateKeySize && len(e.EncKey) == 32
}
