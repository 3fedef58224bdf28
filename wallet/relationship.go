package wallet

import (
	"fmt"
	"net/url"

	"github.com/cvsouth/tsp-go/cesr"
	"github.com/cvsouth/tsp-go/cryptoengine"
	"github.com/cvsouth/tsp-go/definitions"
	"github.com/cvsouth/tsp-go/vid"
)

// MakeRelationshipRequest seals a relationship request from sender to
// receiver, optionally routed through hopList, and records the resulting
// unidirectional relationship in the wallet.
func (w *Wallet) MakeRelationshipRequest(sender, receiver string, hopList []string) (Sealed, error) {
	sealed, threadID, err := w.sealPayloadAndHash(sender, receiver, nil, definitions.RequestRelationship{Route: hopList})
	if err != nil {
		return Sealed{}, err
	}
	if len(hopList) > 0 {
		if err := w.SetRouteForVid(receiver, hopList); err != nil {
			return Sealed{}, err
		}
		sealed, err = w.resolveRouteAndSend(hopList, sealed.Message)
		if err != nil {
			return Sealed{}, err
		}
	}
	if err := w.SetRelationAndStatusForVid(receiver,
		definitions.RelationshipStatus{Kind: definitions.Unidirectional, ThreadID: threadID}, sender); err != nil {
		return Sealed{}, err
	}
	w.pending.Register(receiver, RequestTimeout)
	return sealed, nil
}

// MakeRelationshipAccept seals an acceptance of a previously received
// relationship request, upgrading the local relationship record to
// bidirectional.
func (w *Wallet) MakeRelationshipAccept(sender, receiver string, threadID definitions.Digest, hopList []string) (Sealed, error) {
	sealed, _, err := w.sealPayloadAndHash(sender, receiver, nil, definitions.AcceptRelationship{ThreadID: threadID})
	if err != nil {
		return Sealed{}, err
	}
	if len(hopList) > 0 {
		if err := w.SetRouteForVid(receiver, hopList); err != nil {
			return Sealed{}, err
		}
		sealed, err = w.resolveRouteAndSend(hopList, sealed.Message)
		if err != nil {
			return Sealed{}, err
		}
	}
	if err := w.SetRelationAndStatusForVid(receiver, definitions.BiDefault(threadID), sender); err != nil {
		return Sealed{}, err
	}
	return sealed, nil
}

// MakeRelationshipCancel seals a cancellation of the current relationship
// with receiver and resets the local relationship record to unrelated.
func (w *Wallet) MakeRelationshipCancel(sender, receiver string) (Sealed, error) {
	old, err := w.ReplaceRelationStatusForVid(receiver, definitions.RelationshipStatus{Kind: definitions.Unrelated})
	if err != nil {
		return Sealed{}, err
	}
	if old.Kind == definitions.Unrelated || old.Kind == definitions.Controlled {
		// restore: there was nothing to cancel.
		if restoreErr := w.SetRelationStatusForVid(receiver, old); restoreErr != nil {
			return Sealed{}, restoreErr
		}
		return Sealed{}, fmt.Errorf("%w: no relationship with %s to cancel", ErrRelationship, receiver)
	}
	w.pending.Clear(receiver)
	return w.sealPayload(sender, receiver, nil, definitions.CancelRelationship{ThreadID: old.ThreadID})
}

// MakeNestedRelationshipRequest proposes a fresh nested relationship under
// an existing bidirectional relationship with receiver, returning the
// message to send and the freshly generated nested VID.
func (w *Wallet) MakeNestedRelationshipRequest(parentSender, receiver string) (Sealed, *vid.OwnedVid, error) {
	nestedVid, err := w.makePropositioningVid(parentSender)
	if err != nil {
		return Sealed{}, nil, err
	}

	innerEnv, _, err := cryptoengine.Seal(cryptoengine.SealRequest{
		Sender:        nestedVid,
		Receiver:      anycastReceiver{},
		CryptoType:    cesr.CryptoPlaintext,
		SignatureType: cesr.SignatureEd25519,
		Payload:       definitions.Content(nil),
	})
	if err != nil {
		return Sealed{}, nil, fmt.Errorf("wallet: sign nested request: %w", err)
	}
	innerWire := cesr.EncodeEnvelope(innerEnv)

	sealed, threadID, err := w.sealPayloadAndHash(parentSender, receiver, nil,
		definitions.RequestNestedRelationship{Inner: innerWire})
	if err != nil {
		return Sealed{}, nil, err
	}
	if err := w.addNestedThreadID(receiver, threadID); err != nil {
		return Sealed{}, nil, err
	}
	return sealed, nestedVid, nil
}

// MakeNestedRelationshipAccept accepts a nested relationship request whose
// proposed peer VID is nestedReceiver, generating this side's own nested VID
// and immediately marking both directions bidirectional.
func (w *Wallet) MakeNestedRelationshipAccept(parentSender, receiver, nestedReceiver string, threadID definitions.Digest) (Sealed, *vid.OwnedVid, error) {
	nestedVid, err := w.makePropositioningVid(parentSender)
	if err != nil {
		return Sealed{}, nil, err
	}

	bi := definitions.BiDefault(threadID)
	if err := w.SetRelationAndStatusForVid(nestedVid.Identifier(), bi, nestedReceiver); err != nil {
		return Sealed{}, nil, err
	}
	if err := w.SetRelationAndStatusForVid(nestedReceiver, bi, nestedVid.Identifier()); err != nil {
		return Sealed{}, nil, err
	}

	nestedReceiverCtx, err := w.getVidContext(nestedReceiver)
	if err != nil {
		return Sealed{}, nil, err
	}
	if nestedReceiverCtx.ParentVid == "" {
		return Sealed{}, nil, fmt.Errorf("%w: %s has no parent vid", ErrRelationship, nestedReceiver)
	}

	nestedReceiverVid, err := w.GetVerifiedVid(nestedReceiver)
	if err != nil {
		return Sealed{}, nil, err
	}
	innerEnv, _, err := cryptoengine.Seal(cryptoengine.SealRequest{
		Sender:        nestedVid,
		Receiver:      nestedReceiverVid,
		CryptoType:    cesr.CryptoPlaintext,
		SignatureType: cesr.SignatureEd25519,
		Payload:       definitions.Content(nil),
	})
	if err != nil {
		return Sealed{}, nil, fmt.Errorf("wallet: sign nested accept: %w", err)
	}
	innerWire := cesr.EncodeEnvelope(innerEnv)

	sealed, err := w.sealPayload(parentSender, nestedReceiverCtx.ParentVid, nil,
		definitions.AcceptNestedRelationship{ThreadID: threadID, Inner: innerWire})
	if err != nil {
		return Sealed{}, nil, err
	}

	if err := w.SetRelationAndStatusForVid(nestedReceiver, bi, nestedVid.Identifier()); err != nil {
		return Sealed{}, nil, err
	}
	return sealed, nestedVid, nil
}

// MakeNewIdentifierNotice announces newVid as this wallet's new identifier to
// receiver, which must already have a bidirectional relationship with it.
func (w *Wallet) MakeNewIdentifierNotice(sender, receiver, newVid string) (Sealed, error) {
	status := w.RelationStatusForVidPair(sender, receiver)
	if status.Kind != definitions.Bidirectional {
		return Sealed{}, fmt.Errorf("%w: no relationship with %s", ErrRelationship, receiver)
	}
	if !w.HasPrivateVid(newVid) {
		return Sealed{}, fmt.Errorf("%w: %s", ErrMissingPrivateVid, newVid)
	}
	return w.sealPayload(sender, receiver, nil, definitions.NewIdentifier{ThreadID: status.ThreadID, NewVid: newVid})
}

// MakeRelationshipReferral introduces referredVid to receiver.
func (w *Wallet) MakeRelationshipReferral(sender, receiver, referredVid string) (Sealed, error) {
	if !w.HasVerifiedVid(referredVid) {
		return Sealed{}, fmt.Errorf("%w: %s", ErrUnverifiedVid, referredVid)
	}
	return w.sealPayload(sender, receiver, nil, definitions.Referral{ReferredVid: referredVid})
}

// makePropositioningVid generates a fresh owned VID nested under parentVid
// and registers it in the wallet, the seed identity used to open a new
// nested relationship.
func (w *Wallet) makePropositioningVid(parentVid string) (*vid.OwnedVid, error) {
	transport, err := url.Parse("tsp://")
	if err != nil {
		return nil, fmt.Errorf("wallet: parse nested transport: %w", err)
	}
	nested, err := vid.NewDIDPeer(transport)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate nested vid: %w", err)
	}
	w.AddPrivateVid(nested, nil)
	if err := w.SetParentForVid(nested.Identifier(), parentVid); err != nil {
		return nil, err
	}
	return nested, nil
}
