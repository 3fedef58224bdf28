package wallet

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cvsouth/tsp-go/definitions"
	"github.com/cvsouth/tsp-go/vid"
)

// Import restores a wallet snapshot previously produced by Export.
func (w *Wallet) Import(records []vid.ExportVid, aliases map[string]string, keys map[string][]byte) error {
	for _, rec := range records {
		endpoint, err := vid.ParseEndpoint(rec.Transport)
		if err != nil {
			return fmt.Errorf("wallet: import %s: parse transport: %w", rec.ID, err)
		}

		var encKey [32]byte
		copy(encKey[:], rec.PublicEncKey)

		v := &vid.Vid{
			ID:        rec.ID,
			Transport: endpoint,
			SigKey:    ed25519.PublicKey(rec.PublicSigKey),
			EncKey:    encKey,
		}

		kind, err := definitions.ParseRelationshipKind(rec.RelationStatus)
		if err != nil {
			return fmt.Errorf("wallet: import %s: %w", rec.ID, err)
		}
		var threadID definitions.Digest
		copy(threadID[:], rec.RelationThreadID)

		ctx := &VidContext{
			Vid:            v,
			RelationStatus: definitions.RelationshipStatus{Kind: kind, ThreadID: threadID},
			RelationVid:    rec.RelationVid,
			ParentVid:      rec.ParentVid,
			Tunnel:         append([]string{}, rec.Tunnel...),
			Metadata:       rec.Metadata,
		}

		if rec.IsPrivate() {
			var privEnc [32]byte
			copy(privEnc[:], rec.EncKey)
			owned := vid.Bind(rec.ID, endpoint, ed25519.PrivateKey(rec.SigKey), privEnc)
			ctx.Vid = owned
			ctx.Private = owned
		}

		w.mu.Lock()
		w.vids[rec.ID] = ctx
		w.mu.Unlock()
	}

	for k, v := range keys {
		w.AddSecretKey(k, v)
	}
	for k, v := range aliases {
		w.SetAlias(k, v)
	}
	return nil
}

// addNestedVid registers a peer-presented did:peer string as a verified VID,
// the wallet's offline equivalent of resolving an arbitrary VID method.
func (w *Wallet) addNestedVid(id string) error {
	sigKey, encKey, endpoint, err := vid.ParseDIDPeer(id)
	if err != nil {
		return fmt.Errorf("wallet: resolve nested vid %s: %w", id, err)
	}
	transport, err := vid.ParseEndpoint(endpoint)
	if err != nil {
		return fmt.Errorf("wallet: resolve nested vid %s: parse endpoint: %w", id, err)
	}
	w.AddVerifiedVid(&vid.Vid{
		ID:        id,
		Transport: transport,
		SigKey:    sigKey,
		EncKey:    encKey,
	}, nil)
	return nil
}
