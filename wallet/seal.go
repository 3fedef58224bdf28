package wallet

import (
	"fmt"

	"github.com/cvsouth/tsp-go/cesr"
	"github.com/cvsouth/tsp-go/cryptoengine"
	"github.com/cvsouth/tsp-go/definitions"
)

// Sealed is the result of sealing a message: the transport endpoint to
// deliver it to and the encoded wire bytes.
type Sealed struct {
	Transport string
	Message   []byte
}

// SealMessage encrypts, signs, and encodes message from sender to receiver,
// choosing between direct, nested, and routed delivery based on how
// receiver (and its relation chain) has been configured in the wallet.
func (w *Wallet) SealMessage(sender, receiver string, nonconfidentialData, message []byte) (Sealed, error) {
	return w.sealPayload(sender, receiver, nonconfidentialData, definitions.Content(message))
}

// sealPayloadAndHash is sealPayload plus the thread-ID digest of the
// sealed payload (zero for payloads that carry none), used by the make_*
// relationship operations to learn the thread ID they just minted.
func (w *Wallet) sealPayloadAndHash(sender, receiver string, nonconfidentialData []byte, payload definitions.Payload) (Sealed, definitions.Digest, error) {
	senderVid, err := w.getPrivateVid(sender)
	if err != nil {
		return Sealed{}, definitions.Digest{}, err
	}
	receiverCtx, err := w.getVidContext(receiver)
	if err != nil {
		return Sealed{}, definitions.Digest{}, err
	}

	// Routed mode: receiver is reached through an explicit hop list.
	if len(receiverCtx.Tunnel) > 0 {
		return w.sealRouted(senderVid, receiverCtx, nonconfidentialData, payload)
	}

	// Nested mode: receiver is nested under a parent VID.
	if receiverCtx.ParentVid != "" {
		return w.sealNested(senderVid, receiverCtx, payload)
	}

	// Direct mode.
	ct, st := cryptoTypeForPair(senderVid, receiverCtx.Vid)
	env, digest, err := cryptoengine.Seal(cryptoengine.SealRequest{
		Sender:              senderVid,
		Receiver:            receiverCtx.Vid,
		CryptoType:          ct,
		SignatureType:       st,
		NonconfidentialData: nonconfidentialData,
		Payload:             payload,
	})
	if err != nil {
		return Sealed{}, digest, fmt.Errorf("wallet: seal: %w", err)
	}
	return Sealed{Transport: receiverCtx.Vid.Endpoint(), Message: cesr.EncodeEnvelope(env)}, digest, nil
}

func (w *Wallet) sealPayload(sender, receiver string, nonconfidentialData []byte, payload definitions.Payload) (Sealed, error) {
	sealed, _, err := w.sealPayloadAndHash(sender, receiver, nonconfidentialData, payload)
	return sealed, err
}

func (w *Wallet) sealRouted(senderVid definitions.PrivateVid, receiverCtx VidContext, nonconfidentialData []byte, payload definitions.Payload) (Sealed, definitions.Digest, error) {
	firstHop, err := w.getVidContext(receiverCtx.Tunnel[0])
	if err != nil {
		return Sealed{}, definitions.Digest{}, err
	}
	if firstHop.RelationVid == "" {
		return Sealed{}, definitions.Digest{}, fmt.Errorf("%w: missing sender vid for first hop", ErrInvalidRoute)
	}

	innerSenderID := receiverCtx.RelationVid
	if innerSenderID == "" {
		innerSenderID = senderVid.Identifier()
	}
	innerSender, err := w.getPrivateVid(innerSenderID)
	if err != nil {
		return Sealed{}, definitions.Digest{}, err
	}

	ct, st := cryptoTypeForPair(innerSender, receiverCtx.Vid)
	innerEnv, digest, err := cryptoengine.Seal(cryptoengine.SealRequest{
		Sender:              innerSender,
		Receiver:            receiverCtx.Vid,
		CryptoType:          ct,
		SignatureType:       st,
		NonconfidentialData: nonconfidentialData,
		Payload:             payload,
	})
	if err != nil {
		return Sealed{}, digest, fmt.Errorf("wallet: seal routed inner message: %w", err)
	}
	innerMessage := cesr.EncodeEnvelope(innerEnv)

	firstHopSender, err := w.getPrivateVid(firstHop.RelationVid)
	if err != nil {
		return Sealed{}, digest, err
	}

	sealed, err := w.sealPayload(
		firstHopSender.Identifier(),
		firstHop.Vid.Identifier(),
		nil,
		definitions.RoutedMessage{Hops: receiverCtx.Tunnel[1:], Message: innerMessage},
	)
	return sealed, digest, err
}

func (w *Wallet) sealNested(senderVid definitions.PrivateVid, receiverCtx VidContext, payload definitions.Payload) (Sealed, definitions.Digest, error) {
	innerSenderID := receiverCtx.RelationVid
	if innerSenderID == "" {
		return Sealed{}, definitions.Digest{}, fmt.Errorf("%w: missing sender vid for nested receiver", ErrRelationship)
	}
	senderCtx, err := w.getVidContext(innerSenderID)
	if err != nil {
		return Sealed{}, definitions.Digest{}, err
	}
	if senderCtx.ParentVid == "" {
		return Sealed{}, definitions.Digest{}, fmt.Errorf("%w: missing parent for inner vid", ErrRelationship)
	}
	if senderCtx.ParentVid != senderVid.Identifier() && innerSenderID != senderVid.Identifier() {
		return Sealed{}, definitions.Digest{}, fmt.Errorf("%w: incorrect sender vid", ErrRelationship)
	}

	innerSender, err := w.getPrivateVid(innerSenderID)
	if err != nil {
		return Sealed{}, definitions.Digest{}, err
	}

	var innerMessage []byte
	var digest definitions.Digest
	if content, ok := payload.(definitions.Content); ok {
		env, _, serr := cryptoengine.Seal(cryptoengine.SealRequest{
			Sender:        innerSender,
			Receiver:      receiverCtx.Vid,
			CryptoType:    cesr.CryptoPlaintext,
			SignatureType: cesr.SignatureEd25519,
			Payload:       content,
		})
		if serr != nil {
			return Sealed{}, digest, fmt.Errorf("wallet: sign nested content: %w", serr)
		}
		innerMessage = cesr.EncodeEnvelope(env)
	} else {
		ct, st := cryptoTypeForPair(innerSender, receiverCtx.Vid)
		env, d, serr := cryptoengine.Seal(cryptoengine.SealRequest{
			Sender:        innerSender,
			Receiver:      receiverCtx.Vid,
			CryptoType:    ct,
			SignatureType: st,
			Payload:       payload,
		})
		if serr != nil {
			return Sealed{}, digest, fmt.Errorf("wallet: seal nested payload: %w", serr)
		}
		innerMessage, digest = cesr.EncodeEnvelope(env), d
	}

	parentSender, err := w.getPrivateVid(senderCtx.ParentVid)
	if err != nil {
		return Sealed{}, digest, err
	}
	parentReceiver, err := w.GetVerifiedVid(receiverCtx.ParentVid)
	if err != nil {
		return Sealed{}, digest, err
	}

	sealed, err := w.sealPayload(
		parentSender.Identifier(),
		parentReceiver.Identifier(),
		nil,
		definitions.NestedMessage{Message: innerMessage},
	)
	return sealed, digest, err
}

// SignAnycast signs message with sender's key without encrypting it and
// without a specified recipient.
func (w *Wallet) SignAnycast(sender string, message []byte) ([]byte, error) {
	senderVid, err := w.getPrivateVid(sender)
	if err != nil {
		return nil, err
	}
	env, _, err := cryptoengine.Seal(cryptoengine.SealRequest{
		Sender:        senderVid,
		Receiver:      anycastReceiver{},
		CryptoType:    cesr.CryptoPlaintext,
		SignatureType: cesr.SignatureEd25519,
		Payload:       definitions.Content(message),
	})
	if err != nil {
		return nil, fmt.Errorf("wallet: sign anycast: %w", err)
	}
	return cesr.EncodeEnvelope(env), nil
}

// anycastReceiver is a VerifiedVid with an empty identifier, used for
// signed-only messages with no designated recipient.
type anycastReceiver struct{}

func (anycastReceiver) Identifier() string   { return "" }
func (anycastReceiver) Endpoint() string     { return "" }
func (anycastReceiver) PublicSigKey() []byte { return nil }
func (anycastReceiver) PublicEncKey() []byte { return nil }

func (w *Wallet) resolveRoute(hopList []string) (nextHop string, remaining []string, err error) {
	if len(hopList) == 0 {
		return "", nil, fmt.Errorf("%w: relationship route must not be empty", ErrInvalidRoute)
	}
	v, err := w.GetVerifiedVid(hopList[0])
	if err != nil {
		return "", nil, err
	}
	return v.Identifier(), hopList[1:], nil
}

// ForwardRoutedMessage passes along an in-transit routed message that is
// not addressed to this wallet's owner, peeling or continuing the route as
// appropriate. nextHop is the already-resolved VID named as the route's
// current head; route is the remaining hop list after it.
func (w *Wallet) ForwardRoutedMessage(nextHop string, route []string, opaquePayload []byte) (Sealed, error) {
	if len(route) == 0 {
		// We are the final delivery point, and should be nextHop ourselves.
		senderCtx, err := w.getVidContext(nextHop)
		if err != nil {
			return Sealed{}, err
		}
		if senderCtx.Private == nil {
			return Sealed{}, fmt.Errorf("%w: %s", ErrMissingPrivateVid, nextHop)
		}
		if senderCtx.RelationVid == "" {
			return Sealed{}, fmt.Errorf("%w: %s", ErrMissingDropOff, senderCtx.Vid.Identifier())
		}
		recipient, err := w.GetVerifiedVid(senderCtx.RelationVid)
		if err != nil {
			return Sealed{}, err
		}
		return w.sealPayload(senderCtx.Private.Identifier(), recipient.Identifier(), nil,
			definitions.NestedMessage{Message: opaquePayload})
	}

	nextHopCtx, err := w.getVidContext(nextHop)
	if err != nil {
		return Sealed{}, fmt.Errorf("%w: %s", ErrUnresolvedNextHop, nextHop)
	}
	if nextHopCtx.RelationVid == "" {
		return Sealed{}, fmt.Errorf("%w: %s", ErrInvalidNextHop, nextHop)
	}
	sender, err := w.getPrivateVid(nextHopCtx.RelationVid)
	if err != nil {
		return Sealed{}, err
	}
	return w.sealPayload(sender.Identifier(), nextHopCtx.Vid.Identifier(), nil,
		definitions.RoutedMessage{Hops: route, Message: opaquePayload})
}

func (w *Wallet) resolveRouteAndSend(hopList []string, opaqueMessage []byte) (Sealed, error) {
	nextHop, path, err := w.resolveRoute(hopList)
	if err != nil {
		return Sealed{}, err
	}
	return w.ForwardRoutedMessage(nextHop, path, opaqueMessage)
}

// cryptoTypeForPair picks the confidentiality/signature variant for a
// message between sender and receiver. This build always uses the
// non-ESSR, signed HPKE-Auth variant for direct and nested confidential
// messages — ESSR and NaCl are available through cryptoengine directly for
// callers that need sender-unlinkability, but the wallet's own make_*
// operations have no need to hide the sender from the receiver they are
// establishing or already have a relationship with.
func cryptoTypeForPair(_ definitions.PrivateVid, _ definitions.VerifiedVid) (cesr.CryptoType, cesr.SignatureType) {
	return cesr.CryptoHpkeAuth, cesr.SignatureEd25519
}
