package cesr

import "fmt"

// Selector identifiers for the TSP wire format. Names mirror the original
// codec's constant names; values are derived from their CESR text spelling
// via Ident/Code rather than hand-copied, so a typo in the spelling would be
// caught as a derivation error rather than silently miscoded.
var (
	TSPPlaintext        = Ident("B")
	TSPNaclCiphertext    = Ident("C")
	TSPNaclAuthCiphertext = Ident("NCL")
	TSPHpkeBaseCiphertext = Ident("F")
	TSPHpkeAuthCiphertext = Ident("G")
	TSPHpkePQCiphertext   = Ident("PQC")
	TSPVid                = Ident("B")
	Ed25519Signature      = Ident("B")
	MlDsa65Signature       = Ident("QDM")
	TSPNonce               = Ident("A")
	TSPSha256               = Ident("I")
	TSPBlake2b256           = Ident("F")
	TSPTmp                   = Ident("X")
)

// Payload type codes. Four CESR-alphabet characters packed to 3 raw bytes
// and compared/written as a literal tag, the way the original codec embeds
// a human-spellable payload discriminator directly in the byte stream.
var (
	PayloadGeneric               = Code("XSCS")
	PayloadNestedOrRouted         = Code("XHOP")
	PayloadRelationRequestOrNew   = Code("XRFI")
	PayloadRelationAccept         = Code("XRFA")
	PayloadRelationCancel         = Code("XRFD")
	PayloadNestedRelationRequest  = Code("XRNI")
	PayloadNestedRelationAccept   = Code("XRNA")
	PayloadReferral               = Code("X3RR")
)

// CryptoType identifies the envelope confidentiality variant.
type CryptoType uint8

const (
	CryptoPlaintext CryptoType = iota
	CryptoHpkeAuth
	CryptoHpkeEssr
	CryptoNaclAuth
	CryptoNaclEssr
	CryptoX25519Kyber768Draft00
)

// SignatureType identifies the envelope signature variant.
type SignatureType uint8

const (
	SignatureNone SignatureType = iota
	SignatureEd25519
	SignatureMlDsa65
)

// signatureByteLen returns the fixed wire length of a signature variant, so
// the decoder knows how many bytes to pull out of a -K indexed-signature
// group without a length prefix of its own.
func signatureByteLen(t SignatureType) (int, bool) {
	switch t {
	case SignatureEd25519:
		return 64, true
	case SignatureMlDsa65:
		return 3309, true
	default:
		return 0, false
	}
}

// Genus is the 3-byte protocol identifier stamped at the head of every
// envelope, followed by a (major, minor, patch) version triple.
var Genus = [3]byte{'T', 'S', 'P'}

const (
	VersionMajor = 0
	VersionMinor = 0
	VersionPatch = 1
)

// Envelope is the decoded outer framing of a TSP wire message: sender and
// receiver VID identifiers, the crypto/signature variant in force, optional
// nonconfidential data, and the still-opaque ciphertext or signed body.
type Envelope struct {
	Sender           string
	Receiver         string // empty for a broadcast/signed-only message with no designated recipient
	CryptoType       CryptoType
	SignatureType    SignatureType
	NonconfidentialData []byte
	Ciphertext       []byte // confidentiality-sealed payload + crypto material (tag, encapped key, nonce)
	Signature        []byte // present when SignatureType != SignatureNone
}

// EncodeVersionMarker appends the genus+version marker that opens every
// envelope.
func EncodeVersionMarker(out []byte) []byte {
	return EncodeGenus(Genus, VersionMajor, VersionMinor, VersionPatch, out)
}

// DecodeVersionMarker consumes the opening genus+version marker, returning
// an error if it doesn't match this codec's genus or if the major version
// differs (minor/patch skew is tolerated).
func DecodeVersionMarker(stream []byte) (consumed int, err error) {
	genus, major, _, _, n, ok := DecodeGenus(stream, NonStrict)
	if !ok {
		return 0, fmt.Errorf("%w: malformed genus marker", ErrVersionMismatch)
	}
	if genus != Genus {
		return 0, fmt.Errorf("%w: genus %q, want %q", ErrVersionMismatch, genus, Genus)
	}
	if major != VersionMajor {
		return 0, fmt.Errorf("%w: major version %d, want %d", ErrVersionMismatch, major, VersionMajor)
	}
	return n, nil
}

// EncodeField writes a CESR variable-data field carrying an arbitrary
// identifier/byte-string pair, the building block used for every envelope
// field (sender VID, receiver VID, nonconfidential data, ciphertext,
// signature).
func EncodeField(identifier uint32, data []byte, out []byte) []byte {
	return EncodeVariableData(identifier, data, out)
}

// DecodeField consumes one CESR variable-data field with the given
// identifier from the front of stream.
func DecodeField(identifier uint32, stream []byte) (data []byte, consumed int, err error) {
	data, consumed, ok := DecodeVariableData(identifier, stream, NonStrict)
	if !ok {
		return nil, 0, fmt.Errorf("%w: field identifier %d", ErrHeaderMismatch, identifier)
	}
	return data, consumed, nil
}

// encodeGroup appends a CESR count-group: a 3-byte counter naming identifier
// and the number of 3-byte triplets in body, followed by body itself. Every
// field and group this codec builds is already triplet-aligned, so group
// bodies compose without further padding.
func encodeGroup(identifier uint32, body []byte, out []byte) []byte {
	if len(body)%3 != 0 {
		panic("cesr: group body must be triplet-aligned")
	}
	out = EncodeCount(identifier, uint32(len(body)/3), out)
	return append(out, body...)
}

// decodeGroup consumes a CESR count-group with the given identifier,
// returning its body and the total bytes consumed (counter plus body).
func decodeGroup(identifier uint32, stream []byte, mode MatchMode) (body []byte, consumed int, ok bool) {
	count, used, ok := DecodeCount(identifier, stream, mode)
	if !ok {
		return nil, 0, false
	}
	bodyLen := int(count) * 3
	total := used + bodyLen
	if len(stream) < total {
		return nil, 0, false
	}
	return stream[used:total], total, true
}
