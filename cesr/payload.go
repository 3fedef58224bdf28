package cesr

import "fmt"

// Payload is the wire-level message body sealed or signed inside an
// Envelope. Each concrete type below corresponds to one payload type code
// (XSCS, XHOP, XRFI, ...); XHOP disambiguates NestedMessage from
// RoutedMessage by whether a hop list is present, and XRFI disambiguates
// DirectRelationProposal from NewIdentifierProposal by whether a hop-list
// count follows the first field, exactly as the reference codec does.
type Payload interface {
	payloadCode() [3]byte
}

type GenericMessage []byte

func (GenericMessage) payloadCode() [3]byte { return PayloadGeneric }

type NestedMessage []byte

func (NestedMessage) payloadCode() [3]byte { return PayloadNestedOrRouted }

type RoutedMessage struct {
	Hops    []string
	Message []byte
}

func (RoutedMessage) payloadCode() [3]byte { return PayloadNestedOrRouted }

type DirectRelationProposal struct {
	Nonce [16]byte
	Hops  []string
}

func (DirectRelationProposal) payloadCode() [3]byte { return PayloadRelationRequestOrNew }

type NewIdentifierProposal struct {
	ThreadID [32]byte
	NewVid   string
}

func (NewIdentifierProposal) payloadCode() [3]byte { return PayloadRelationRequestOrNew }

type DirectRelationAffirm struct {
	Reply [32]byte
}

func (DirectRelationAffirm) payloadCode() [3]byte { return PayloadRelationAccept }

type RelationshipCancel struct {
	Reply [32]byte
}

func (RelationshipCancel) payloadCode() [3]byte { return PayloadRelationCancel }

type NestedRelationProposal struct {
	Nonce   [16]byte
	Message []byte
}

func (NestedRelationProposal) payloadCode() [3]byte { return PayloadNestedRelationRequest }

type NestedRelationAffirm struct {
	Reply   [32]byte
	Message []byte
}

func (NestedRelationAffirm) payloadCode() [3]byte { return PayloadNestedRelationAccept }

type RelationshipReferral struct {
	ReferredVid string
}

func (RelationshipReferral) payloadCode() [3]byte { return PayloadReferral }

// identifier used to frame each individual sub-field of a payload body. The
// payload type code already disambiguates the variant, so every sub-field
// within a payload reuses the same generic "data" field identifier (TSPTmp)
// — only the outer envelope fields (sender/receiver/ciphertext/signature)
// need distinct identifiers, since they appear side by side.
var payloadFieldIdent = TSPTmp

// payloadGroupIdent frames the -Z payload-count wrapper that encloses a
// payload's type code and fields.
var payloadGroupIdent = Ident("Z")

func encodeStringList(ss []string, out []byte) []byte {
	out = EncodeCount(Ident("H"), uint32(len(ss)), out)
	for _, s := range ss {
		out = EncodeField(payloadFieldIdent, []byte(s), out)
	}
	return out
}

func decodeStringList(stream []byte) (ss []string, consumed int, err error) {
	n, used, ok := DecodeCount(Ident("H"), stream, NonStrict)
	if !ok {
		return nil, 0, fmt.Errorf("%w: hop list count", ErrHeaderMismatch)
	}
	consumed = used
	for i := uint32(0); i < n; i++ {
		data, used, err := DecodeField(payloadFieldIdent, stream[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("hop %d: %w", i, err)
		}
		ss = append(ss, string(data))
		consumed += used
	}
	return ss, consumed, nil
}

// EncodePayload serializes a Payload to its CESR wire form: a -Z
// payload-count wrapper enclosing a 3-byte type code followed by the
// variant's fields, each framed as a CESR field.
func EncodePayload(p Payload) []byte {
	return encodeGroup(payloadGroupIdent, encodePayloadBody(p), nil)
}

func encodePayloadBody(p Payload) []byte {
	var out []byte
	code := p.payloadCode()
	out = append(out, code[:]...)

	switch v := p.(type) {
	case GenericMessage:
		out = EncodeField(payloadFieldIdent, v, out)
	case NestedMessage:
		out = EncodeField(payloadFieldIdent, v, out)
	case RoutedMessage:
		out = encodeStringList(v.Hops, out)
		out = EncodeField(payloadFieldIdent, v.Message, out)
	case DirectRelationProposal:
		out = EncodeField(payloadFieldIdent, v.Nonce[:], out)
		out = encodeStringList(v.Hops, out)
	case NewIdentifierProposal:
		out = EncodeField(payloadFieldIdent, v.ThreadID[:], out)
		out = EncodeField(payloadFieldIdent, []byte(v.NewVid), out)
	case DirectRelationAffirm:
		out = EncodeField(payloadFieldIdent, v.Reply[:], out)
	case RelationshipCancel:
		out = EncodeField(payloadFieldIdent, v.Reply[:], out)
	case NestedRelationProposal:
		out = EncodeField(payloadFieldIdent, v.Nonce[:], out)
		out = EncodeField(payloadFieldIdent, v.Message, out)
	case NestedRelationAffirm:
		out = EncodeField(payloadFieldIdent, v.Reply[:], out)
		out = EncodeField(payloadFieldIdent, v.Message, out)
	case RelationshipReferral:
		out = EncodeField(payloadFieldIdent, []byte(v.ReferredVid), out)
	default:
		panic(fmt.Sprintf("cesr: unknown payload type %T", p))
	}
	return out
}

// DecodePayload consumes a -Z payload-count wrapper and parses its body,
// disambiguating XHOP (NestedMessage vs RoutedMessage, by hop-list
// emptiness) and XRFI (DirectRelationProposal vs NewIdentifierProposal, by
// whether a hop-list count follows the first field) the way the reference
// implementation does.
func DecodePayload(stream []byte) (Payload, int, error) {
	body, consumed, ok := decodeGroup(payloadGroupIdent, stream, NonStrict)
	if !ok {
		return nil, 0, fmt.Errorf("%w: missing -Z payload wrapper", ErrHeaderMismatch)
	}
	p, used, err := decodePayloadBody(body)
	if err != nil {
		return nil, 0, err
	}
	if used != len(body) {
		return nil, 0, fmt.Errorf("%w: trailing bytes inside payload wrapper", ErrHeaderMismatch)
	}
	return p, consumed, nil
}

func decodePayloadBody(stream []byte) (Payload, int, error) {
	if len(stream) < 3 {
		return nil, 0, fmt.Errorf("%w: truncated payload code", ErrShortStream)
	}
	var code [3]byte
	copy(code[:], stream[:3])
	pos := 3

	readField := func() ([]byte, error) {
		data, used, err := DecodeField(payloadFieldIdent, stream[pos:])
		if err != nil {
			return nil, err
		}
		pos += used
		return data, nil
	}

	switch code {
	case PayloadGeneric:
		data, err := readField()
		if err != nil {
			return nil, 0, err
		}
		return GenericMessage(data), pos, nil

	case PayloadNestedOrRouted:
		savedPos := pos
		hops, used, err := decodeStringList(stream[pos:])
		if err == nil && len(hops) > 0 {
			pos += used
			msg, err := readField()
			if err != nil {
				return nil, 0, err
			}
			return RoutedMessage{Hops: hops, Message: msg}, pos, nil
		}
		pos = savedPos
		msg, err := readField()
		if err != nil {
			return nil, 0, err
		}
		return NestedMessage(msg), pos, nil

	case PayloadRelationRequestOrNew:
		var nonceOrThread [32]byte
		nd, err := readField()
		if err != nil {
			return nil, 0, err
		}
		savedPos := pos
		hops, used, hopErr := decodeStringList(stream[pos:])
		if hopErr == nil {
			pos += used
			var nonce [16]byte
			copy(nonce[:], nd)
			return DirectRelationProposal{Nonce: nonce, Hops: hops}, pos, nil
		}
		pos = savedPos
		newVid, err := readField()
		if err != nil {
			return nil, 0, err
		}
		copy(nonceOrThread[:], nd)
		return NewIdentifierProposal{ThreadID: nonceOrThread, NewVid: string(newVid)}, pos, nil

	case PayloadRelationAccept:
		rd, err := readField()
		if err != nil {
			return nil, 0, err
		}
		var reply [32]byte
		copy(reply[:], rd)
		return DirectRelationAffirm{Reply: reply}, pos, nil

	case PayloadRelationCancel:
		rd, err := readField()
		if err != nil {
			return nil, 0, err
		}
		var reply [32]byte
		copy(reply[:], rd)
		return RelationshipCancel{Reply: reply}, pos, nil

	case PayloadNestedRelationRequest:
		nd, err := readField()
		if err != nil {
			return nil, 0, err
		}
		msg, err := readField()
		if err != nil {
			return nil, 0, err
		}
		var nonce [16]byte
		copy(nonce[:], nd)
		return NestedRelationProposal{Nonce: nonce, Message: msg}, pos, nil

	case PayloadNestedRelationAccept:
		rd, err := readField()
		if err != nil {
			return nil, 0, err
		}
		msg, err := readField()
		if err != nil {
			return nil, 0, err
		}
		var reply [32]byte
		copy(reply[:], rd)
		return NestedRelationAffirm{Reply: reply, Message: msg}, pos, nil

	case PayloadReferral:
		vd, err := readField()
		if err != nil {
			return nil, 0, err
		}
		return RelationshipReferral{ReferredVid: string(vd)}, pos, nil

	default:
		return nil, 0, fmt.Errorf("%w: payload code %x", ErrUnknownSelector, code)
	}
}
