package cryptoengine

import (
	"crypto/rand"
	"fmt"

	"github.com/cvsouth/tsp-go/cesr"
	"github.com/cvsouth/tsp-go/definitions"
)

// toWire converts a wallet-level Payload to its wire (cesr) representation,
// generating a fresh nonce for request/proposal variants and computing the
// thread-ID digest the same way for both the HPKE and NaCl code paths (the
// reference implementation differs only in which hash function feeds the
// digest, not in the conversion shape itself).
func toWire(p definitions.Payload, digestFn func([]byte) [32]byte) (cesr.Payload, [32]byte, error) {
	switch v := p.(type) {
	case definitions.Content:
		return cesr.GenericMessage(v), [32]byte{}, nil

	case definitions.RequestRelationship:
		var nonce [16]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return nil, [32]byte{}, fmt.Errorf("cryptoengine: generate nonce: %w", err)
		}
		digest := digestFn(nonce[:])
		return cesr.DirectRelationProposal{Nonce: nonce, Hops: v.Route}, digest, nil

	case definitions.AcceptRelationship:
		return cesr.DirectRelationAffirm{Reply: v.ThreadID}, v.ThreadID, nil

	case definitions.CancelRelationship:
		return cesr.RelationshipCancel{Reply: v.ThreadID}, v.ThreadID, nil

	case definitions.RequestNestedRelationship:
		var nonce [16]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return nil, [32]byte{}, fmt.Errorf("cryptoengine: generate nonce: %w", err)
		}
		digest := digestFn(nonce[:])
		return cesr.NestedRelationProposal{Nonce: nonce, Message: v.Inner}, digest, nil

	case definitions.AcceptNestedRelationship:
		return cesr.NestedRelationAffirm{Reply: v.ThreadID, Message: v.Inner}, v.ThreadID, nil

	case definitions.NewIdentifier:
		return cesr.NewIdentifierProposal{ThreadID: v.ThreadID, NewVid: v.NewVid}, v.ThreadID, nil

	case definitions.Referral:
		return cesr.RelationshipReferral{ReferredVid: v.ReferredVid}, [32]byte{}, nil

	case definitions.RoutedMessage:
		return cesr.RoutedMessage{Hops: v.Hops, Message: v.Message}, [32]byte{}, nil

	case definitions.NestedMessage:
		return cesr.NestedMessage(v.Message), [32]byte{}, nil

	default:
		return nil, [32]byte{}, fmt.Errorf("cryptoengine: unknown payload type %T", p)
	}
}

// fromWire is the inverse of toWire, used when opening a message. Proposal
// variants carry only a nonce on the wire; their thread ID is the digest of
// that nonce, computed with the same function the sealing side used.
func fromWire(p cesr.Payload, digestFn func([]byte) [32]byte) (definitions.Payload, error) {
	switch v := p.(type) {
	case cesr.GenericMessage:
		return definitions.Content(v), nil
	case cesr.DirectRelationProposal:
		return definitions.RequestRelationship{Route: v.Hops, ThreadID: digestFn(v.Nonce[:])}, nil
	case cesr.DirectRelationAffirm:
		return definitions.AcceptRelationship{ThreadID: v.Reply}, nil
	case cesr.RelationshipCancel:
		return definitions.CancelRelationship{ThreadID: v.Reply}, nil
	case cesr.NestedRelationProposal:
		return definitions.RequestNestedRelationship{Inner: v.Message, ThreadID: digestFn(v.Nonce[:])}, nil
	case cesr.NestedRelationAffirm:
		return definitions.AcceptNestedRelationship{ThreadID: v.Reply, Inner: v.Message}, nil
	case cesr.NewIdentifierProposal:
		return definitions.NewIdentifier{ThreadID: v.ThreadID, NewVid: v.NewVid}, nil
	case cesr.RelationshipReferral:
		return definitions.Referral{ReferredVid: v.ReferredVid}, nil
	case cesr.RoutedMessage:
		return definitions.RoutedMessage{Hops: v.Hops, Message: v.Message}, nil
	case cesr.NestedMessage:
		return definitions.NestedMessage{Message: v}, nil
	default:
		return nil, fmt.Errorf("cryptoengine: unknown wire payload type %T", p)
	}
}
