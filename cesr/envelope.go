package cesr

import "fmt"

var (
	senderFieldIdent   = Ident("s")
	receiverFieldIdent = Ident("r")
	nonconfFieldIdent  = Ident("u")
	cipherFieldIdent   = Ident("e")
	sigFieldIdent      = Ident("g")
	cryptoTypeIdent    = Ident("t")
	sigTypeIdent       = Ident("y")

	etsGroupIdent        = Ident("E") // encrypted envelope wrapper
	signedGroupIdent     = Ident("S") // signed-only (no confidentiality) envelope wrapper
	attachmentGroupIdent = Ident("C") // attachment group, holds the signature group
	sigGroupIdent        = Ident("K") // indexed-signature group inside an attachment group
)

// EncodeEnvelopeHeader serializes the portion of an envelope that both the
// seal/open associated-data binding and the outer signature cover: the
// version marker and every field up to, but excluding, the ciphertext and
// signature. Callers that need "raw_header" bytes (HPKE's associated data)
// use this directly; EncodeEnvelope builds on top of it.
func EncodeEnvelopeHeader(e *Envelope) []byte {
	var out []byte
	out = EncodeVersionMarker(out)
	out = EncodeField(senderFieldIdent, []byte(e.Sender), out)
	out = EncodeField(receiverFieldIdent, []byte(e.Receiver), out)
	out = EncodeFixedData(cryptoTypeIdent, []byte{byte(e.CryptoType)}, out)
	out = EncodeFixedData(sigTypeIdent, []byte{byte(e.SignatureType)}, out)
	out = EncodeField(nonconfFieldIdent, e.NonconfidentialData, out)
	return out
}

// EncodeEnvelope serializes an Envelope to its complete wire form: an
// encrypted (-E) or signed-only (-S) count-group wrapping the header and
// ciphertext field, followed — once a signature has been computed — by an
// attachment group (-C) holding an indexed-signature group (-K) with the
// signature itself. Called with Signature unset, it produces exactly the
// bytes a signer signs over; called again with Signature populated, it
// produces the bytes that travel on the wire.
func EncodeEnvelope(e *Envelope) []byte {
	body := EncodeEnvelopeHeader(e)
	body = EncodeField(cipherFieldIdent, e.Ciphertext, body)

	groupIdent := etsGroupIdent
	if e.CryptoType == CryptoPlaintext {
		groupIdent = signedGroupIdent
	}
	out := encodeGroup(groupIdent, body, nil)

	if len(e.Signature) > 0 {
		sigField := EncodeIndexedData(sigFieldIdent, 0, e.Signature, nil)
		kGroup := encodeGroup(sigGroupIdent, sigField, nil)
		out = encodeGroup(attachmentGroupIdent, kGroup, out)
	}
	return out
}

// DecodeEnvelope parses a complete wire envelope from stream, returning the
// number of bytes consumed.
func DecodeEnvelope(stream []byte) (*Envelope, int, error) {
	body, consumed, err := decodeEnvelopeWrapper(stream)
	if err != nil {
		return nil, 0, err
	}

	pos, err := DecodeVersionMarker(body)
	if err != nil {
		return nil, 0, err
	}
	sender, used, err := DecodeField(senderFieldIdent, body[pos:])
	if err != nil {
		return nil, 0, fmt.Errorf("sender: %w", err)
	}
	pos += used
	receiver, used, err := DecodeField(receiverFieldIdent, body[pos:])
	if err != nil {
		return nil, 0, fmt.Errorf("receiver: %w", err)
	}
	pos += used
	ctBytes, used, ok := DecodeFixedData(cryptoTypeIdent, 1, body[pos:], NonStrict)
	if !ok {
		return nil, 0, fmt.Errorf("%w: crypto type tag", ErrHeaderMismatch)
	}
	pos += used
	styBytes, used, ok := DecodeFixedData(sigTypeIdent, 1, body[pos:], NonStrict)
	if !ok {
		return nil, 0, fmt.Errorf("%w: signature type tag", ErrHeaderMismatch)
	}
	pos += used
	nonconf, used, err := DecodeField(nonconfFieldIdent, body[pos:])
	if err != nil {
		return nil, 0, fmt.Errorf("nonconfidential data: %w", err)
	}
	pos += used
	ciphertext, used, err := DecodeField(cipherFieldIdent, body[pos:])
	if err != nil {
		return nil, 0, fmt.Errorf("ciphertext: %w", err)
	}
	pos += used

	if pos != len(body) {
		return nil, 0, fmt.Errorf("%w: trailing bytes inside envelope wrapper", ErrHeaderMismatch)
	}

	e := &Envelope{
		Sender:              string(sender),
		Receiver:            string(receiver),
		CryptoType:          CryptoType(ctBytes[0]),
		SignatureType:       SignatureType(styBytes[0]),
		NonconfidentialData: nonconf,
		Ciphertext:          ciphertext,
	}

	if e.SignatureType != SignatureNone {
		sig, used, err := decodeSignatureAttachment(e.SignatureType, stream[consumed:])
		if err != nil {
			return nil, 0, err
		}
		e.Signature = sig
		consumed += used
	}

	return e, consumed, nil
}

// decodeEnvelopeWrapper consumes the outer -E or -S count-group, returning
// its body (everything EncodeEnvelopeHeader plus the ciphertext field
// produced) and the bytes consumed.
func decodeEnvelopeWrapper(stream []byte) (body []byte, consumed int, err error) {
	if b, used, ok := decodeGroup(etsGroupIdent, stream, NonStrict); ok {
		return b, used, nil
	}
	if b, used, ok := decodeGroup(signedGroupIdent, stream, NonStrict); ok {
		return b, used, nil
	}
	return nil, 0, fmt.Errorf("%w: missing -E/-S envelope wrapper", ErrHeaderMismatch)
}

// decodeSignatureAttachment consumes a -C attachment group holding a -K
// indexed-signature group, returning the raw signature bytes and the total
// bytes consumed.
func decodeSignatureAttachment(sigType SignatureType, stream []byte) (sig []byte, consumed int, err error) {
	n, ok := signatureByteLen(sigType)
	if !ok {
		return nil, 0, fmt.Errorf("%w: signature type %d has no fixed attachment length", ErrUnknownSelector, sigType)
	}
	attBody, used, ok := decodeGroup(attachmentGroupIdent, stream, NonStrict)
	if !ok {
		return nil, 0, fmt.Errorf("%w: missing -C attachment group", ErrHeaderMismatch)
	}
	kBody, kUsed, ok := decodeGroup(sigGroupIdent, attBody, NonStrict)
	if !ok || kUsed != len(attBody) {
		return nil, 0, fmt.Errorf("%w: missing -K signature group", ErrHeaderMismatch)
	}
	data, _, dUsed, ok := DecodeIndexedData(sigFieldIdent, n, kBody, Strict)
	if !ok || dUsed != len(kBody) {
		return nil, 0, fmt.Errorf("%w: malformed indexed signature", ErrHeaderMismatch)
	}
	return data, used, nil
}

// Probe inspects the leading bytes of a wire stream far enough to report the
// sender, receiver, and crypto/signature variant without fully decoding (and
// without requiring the ciphertext to be openable yet) — the CESR analogue
// of peeking an envelope's addressing fields before attempting to open it.
func Probe(stream []byte) (sender, receiver string, cryptoType CryptoType, sigType SignatureType, err error) {
	e, _, err := DecodeEnvelope(stream)
	if err != nil {
		return "", "", 0, 0, err
	}
	return e.Sender, e.Receiver, e.CryptoType, e.SignatureType, nil
}
