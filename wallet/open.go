package wallet

import (
	"fmt"

	"github.com/cvsouth/tsp-go/cesr"
	"github.com/cvsouth/tsp-go/cryptoengine"
	"github.com/cvsouth/tsp-go/definitions"
)

// OpenMessage verifies and, if needed, decrypts a wire-encoded envelope
// addressed to (or signed for) this wallet, returning a typed, already
// relationship-aware result. Relationship-state transitions implied by the
// payload (accepting, cancelling, nesting) are applied to the wallet as a
// side effect before returning.
func (w *Wallet) OpenMessage(wire []byte) (definitions.ReceivedTspMessage, error) {
	env, _, err := cesr.DecodeEnvelope(wire)
	if err != nil {
		return definitions.ReceivedTspMessage{}, fmt.Errorf("wallet: decode envelope: %w", err)
	}
	return w.openEnvelope(env)
}

func (w *Wallet) openEnvelope(env *cesr.Envelope) (definitions.ReceivedTspMessage, error) {
	var receiver definitions.PrivateVid
	if env.Receiver != "" {
		var err error
		receiver, err = w.getPrivateVid(env.Receiver)
		if err != nil {
			return definitions.ReceivedTspMessage{}, fmt.Errorf("%w: %s", ErrUnexpectedRecipient, env.Receiver)
		}
	}

	sender, err := w.GetVerifiedVid(env.Sender)
	if err != nil {
		return definitions.ReceivedTspMessage{}, &UnverifiedSourceError{Sender: env.Sender, Message: cesr.EncodeEnvelope(env)}
	}

	result, err := cryptoengine.Open(cryptoengine.OpenRequest{
		Envelope: env,
		Sender:   sender,
		Receiver: receiver,
	})
	if err != nil {
		return definitions.ReceivedTspMessage{}, err
	}

	return w.dispatchPayload(env, result)
}

func (w *Wallet) dispatchPayload(env *cesr.Envelope, result *cryptoengine.OpenResult) (definitions.ReceivedTspMessage, error) {
	base := definitions.ReceivedTspMessage{
		Sender:        result.EmbeddedSenderID,
		Receiver:      env.Receiver,
		CryptoType:    uint8(env.CryptoType),
		SignatureType: uint8(env.SignatureType),
	}

	switch p := result.Payload.(type) {
	case definitions.Content:
		base.Kind = definitions.KindGenericMessage
		base.Message = []byte(p)
		return base, nil

	case definitions.NestedMessage:
		innerEnv, _, err := cesr.DecodeEnvelope(p.Message)
		if err != nil {
			return definitions.ReceivedTspMessage{}, fmt.Errorf("wallet: decode nested message: %w", err)
		}
		if !w.HasVerifiedVid(innerEnv.Sender) {
			return definitions.ReceivedTspMessage{
				Kind:                definitions.KindPendingMessage,
				UnverifiedSender:    innerEnv.Sender,
				PendingInnerMessage: p.Message,
			}, nil
		}
		inner, err := w.openEnvelope(innerEnv)
		if err != nil {
			return definitions.ReceivedTspMessage{}, err
		}
		// A plaintext inner message wrapped inside an encrypted nested
		// envelope from the same party already carries the outer
		// envelope's confidentiality.
		if inner.Kind == definitions.KindGenericMessage && inner.CryptoType == uint8(cesr.CryptoPlaintext) {
			if innerCtx, err := w.getVidContext(innerEnv.Sender); err == nil && innerCtx.ParentVid == env.Sender {
				inner.CryptoType = uint8(env.CryptoType)
			}
		}
		return inner, nil

	case definitions.RoutedMessage:
		nextHop := ""
		if len(p.Hops) > 0 {
			nextHop = p.Hops[0]
		}
		return definitions.ReceivedTspMessage{
			Kind:           definitions.KindForwardRequest,
			Sender:         base.Sender,
			NextHop:        nextHop,
			RemainingRoute: p.Hops[1:],
			OpaquePayload:  p.Message,
		}, nil

	case definitions.RequestRelationship:
		base.Kind = definitions.KindRequestRelationship
		base.ThreadID = p.ThreadID
		base.Route = p.Route
		return base, nil

	case definitions.AcceptRelationship:
		if err := w.upgradeRelation(env.Receiver, base.Sender, p.ThreadID); err != nil {
			return definitions.ReceivedTspMessage{}, err
		}
		base.Kind = definitions.KindAcceptRelationship
		base.ThreadID = p.ThreadID
		return base, nil

	case definitions.CancelRelationship:
		if err := w.cancelRelation(base.Sender, p.ThreadID); err != nil {
			return definitions.ReceivedTspMessage{}, err
		}
		base.Kind = definitions.KindCancelRelationship
		base.ThreadID = p.ThreadID
		return base, nil

	case definitions.RequestNestedRelationship:
		innerEnv, _, err := cesr.DecodeEnvelope(p.Inner)
		if err != nil || innerEnv.CryptoType != cesr.CryptoPlaintext || innerEnv.Receiver != "" {
			return definitions.ReceivedTspMessage{}, fmt.Errorf("%w: invalid nested request, not a signed message", ErrRelationship)
		}
		innerVid := innerEnv.Sender
		if err := w.addNestedVid(innerVid); err != nil {
			return definitions.ReceivedTspMessage{}, err
		}
		if _, err := w.openEnvelope(innerEnv); err != nil {
			return definitions.ReceivedTspMessage{}, fmt.Errorf("wallet: verify nested request signature: %w", err)
		}
		if err := w.SetParentForVid(innerVid, base.Sender); err != nil {
			return definitions.ReceivedTspMessage{}, err
		}
		base.Kind = definitions.KindRequestRelationship
		base.ThreadID = p.ThreadID
		base.NestedVid = innerVid
		return base, nil

	case definitions.AcceptNestedRelationship:
		innerEnv, _, err := cesr.DecodeEnvelope(p.Inner)
		if err != nil || innerEnv.CryptoType != cesr.CryptoPlaintext || innerEnv.Receiver == "" {
			return definitions.ReceivedTspMessage{}, fmt.Errorf("%w: invalid nested accept reply, not a signed message", ErrRelationship)
		}
		nestedVid := innerEnv.Sender
		connectToVid := innerEnv.Receiver
		if err := w.addNestedVid(nestedVid); err != nil {
			return definitions.ReceivedTspMessage{}, err
		}
		if _, err := w.openEnvelope(innerEnv); err != nil {
			return definitions.ReceivedTspMessage{}, fmt.Errorf("wallet: verify nested accept signature: %w", err)
		}
		if err := w.SetParentForVid(nestedVid, base.Sender); err != nil {
			return definitions.ReceivedTspMessage{}, err
		}
		if err := w.addNestedRelation(base.Sender, nestedVid, p.ThreadID); err != nil {
			return definitions.ReceivedTspMessage{}, err
		}
		bi := definitions.BiDefault(p.ThreadID)
		if err := w.SetRelationAndStatusForVid(connectToVid, bi, nestedVid); err != nil {
			return definitions.ReceivedTspMessage{}, err
		}
		if err := w.SetRelationAndStatusForVid(nestedVid, bi, connectToVid); err != nil {
			return definitions.ReceivedTspMessage{}, err
		}
		base.Kind = definitions.KindAcceptRelationship
		base.ThreadID = p.ThreadID
		base.NestedVid = nestedVid
		return base, nil

	case definitions.NewIdentifier:
		status := w.RelationStatusForVidPair(env.Receiver, base.Sender)
		if status.Kind != definitions.Bidirectional || !status.ThreadID.Equal(p.ThreadID) {
			return definitions.ReceivedTspMessage{}, fmt.Errorf("%w: no bidirectional relationship for new-identifier notice from %s", ErrRelationship, base.Sender)
		}
		base.Kind = definitions.KindNewIdentifier
		base.ThreadID = p.ThreadID
		base.NewVid = p.NewVid
		return base, nil

	case definitions.Referral:
		base.Kind = definitions.KindReferral
		base.ReferredVid = p.ReferredVid
		return base, nil

	default:
		return definitions.ReceivedTspMessage{}, fmt.Errorf("wallet: unrecognized payload type %T", p)
	}
}

func (w *Wallet) upgradeRelation(myVid, otherVid string, threadID definitions.Digest) error {
	ctx, err := w.getVidContext(otherVid)
	if err != nil {
		return err
	}
	if ctx.RelationStatus.Kind != definitions.Unidirectional {
		return fmt.Errorf("%w: no unidirectional relationship with %s to upgrade", ErrRelationship, otherVid)
	}
	if !ctx.RelationStatus.ThreadID.Equal(threadID) {
		return fmt.Errorf("%w: thread id mismatch accepting relationship with %s", ErrRelationship, otherVid)
	}
	w.pending.Clear(otherVid)
	return w.SetRelationAndStatusForVid(otherVid, definitions.BiDefault(threadID), myVid)
}

func (w *Wallet) cancelRelation(otherVid string, threadID definitions.Digest) error {
	ctx, err := w.getVidContext(otherVid)
	if err != nil {
		return err
	}
	switch ctx.RelationStatus.Kind {
	case definitions.Unrelated:
		return nil
	case definitions.Controlled:
		return fmt.Errorf("%w: cannot cancel a relationship with yourself", ErrRelationship)
	}
	if !ctx.RelationStatus.ThreadID.Equal(threadID) {
		return fmt.Errorf("%w: wrong thread id cancelling relationship with %s", ErrRelationship, otherVid)
	}
	w.pending.Clear(otherVid)
	return w.SetRelationAndStatusForVid(otherVid, definitions.RelationshipStatus{Kind: definitions.Unrelated}, "")
}

func (w *Wallet) addNestedThreadID(id string, threadID definitions.Digest) error {
	return w.modifyVid(id, func(ctx *VidContext) error {
		if ctx.RelationStatus.Kind != definitions.Bidirectional {
			return fmt.Errorf("%w: no bidirectional relationship with %s", ErrRelationship, id)
		}
		ctx.RelationStatus.OutstandingNestedThreadIDs = append(ctx.RelationStatus.OutstandingNestedThreadIDs, threadID)
		return nil
	})
}

func (w *Wallet) addNestedRelation(parentVid, _ string, threadID definitions.Digest) error {
	return w.modifyVid(parentVid, func(ctx *VidContext) error {
		if ctx.RelationStatus.Kind != definitions.Bidirectional {
			return fmt.Errorf("%w: no bidirectional relationship with %s", ErrRelationship, parentVid)
		}
		outstanding := ctx.RelationStatus.OutstandingNestedThreadIDs
		idx := -1
		for i, id := range outstanding {
			if id.Equal(threadID) {
				idx = i
				break
			}
		}
		if idx == -1 {
			return fmt.Errorf("%w: no outstanding nested relationship request matching thread id with %s", ErrRelationship, parentVid)
		}
		ctx.RelationStatus.OutstandingNestedThreadIDs = append(outstanding[:idx], outstanding[idx+1:]...)
		return nil
	})
}
