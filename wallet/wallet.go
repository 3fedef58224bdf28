// Package wallet implements the VID wallet: a thread-safe store of verified
// and owned identities, their relationship state, and the high-level
// seal/open/make_* operations built on top of cryptoengine, relationship,
// and vid.
package wallet

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cvsouth/tsp-go/definitions"
	"github.com/cvsouth/tsp-go/relationship"
	"github.com/cvsouth/tsp-go/vid"
)

// RequestTimeout is how long a relationship request waits for an accept
// before Wallet.CheckTimeouts reports it as expired.
const RequestTimeout = 5 * time.Minute

// VidContext is the wallet's bookkeeping record for one VID: its verified
// (and, if owned, private) key material plus relationship/nesting/routing
// state layered on top.
type VidContext struct {
	Vid     definitions.VerifiedVid
	Private definitions.PrivateVid // nil unless this wallet owns the VID

	RelationStatus definitions.RelationshipStatus
	RelationVid    string // sender VID to use when addressing this VID
	ParentVid      string // set when this VID is nested under another
	Tunnel         []string
	Metadata       json.RawMessage
}

func (c *VidContext) clone() VidContext {
	cp := *c
	if c.Tunnel != nil {
		cp.Tunnel = append([]string{}, c.Tunnel...)
	}
	return cp
}

// Wallet holds verified and owned VIDs, aliases, and wallet-local secret
// keys. All operations are safe for concurrent use, following the
// mutex-plus-locked-method pattern used throughout this codebase.
type Wallet struct {
	mu      sync.RWMutex
	vids    map[string]*VidContext
	aliases map[string]string
	keys    map[string][]byte

	pending *relationship.PendingRequests
}

// New creates an empty wallet.
func New() *Wallet {
	return &Wallet{
		vids:    make(map[string]*VidContext),
		aliases: make(map[string]string),
		keys:    make(map[string][]byte),
		pending: relationship.NewPendingRequests(),
	}
}

// CheckTimeouts returns the peer identifiers whose relationship request has
// gone unanswered past RequestTimeout, clearing them from the pending set.
func (w *Wallet) CheckTimeouts() []string {
	return w.pending.Expired()
}

// AddSecretKey stores an opaque wallet-local secret (e.g. a webvh update
// key) under kid.
func (w *Wallet) AddSecretKey(kid string, secretKey []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys[kid] = append([]byte{}, secretKey...)
}

// GetSecretKey retrieves a previously stored secret, if any.
func (w *Wallet) GetSecretKey(kid string) ([]byte, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	k, ok := w.keys[kid]
	if !ok {
		return nil, false
	}
	return append([]byte{}, k...), true
}

// AddVerifiedVid registers a VID this wallet has verified but does not own
// the private keys for.
func (w *Wallet) AddVerifiedVid(v definitions.VerifiedVid, metadata json.RawMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ctx, ok := w.vids[v.Identifier()]; ok {
		ctx.Vid = v
		ctx.Metadata = metadata
		return
	}
	w.vids[v.Identifier()] = &VidContext{
		Vid:            v,
		RelationStatus: definitions.RelationshipStatus{Kind: definitions.Unrelated},
		Metadata:       metadata,
	}
}

// AddPrivateVid registers a VID this wallet owns the private keys for.
func (w *Wallet) AddPrivateVid(v definitions.PrivateVid, metadata json.RawMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ctx, ok := w.vids[v.Identifier()]; ok {
		ctx.Vid = v
		ctx.Private = v
		ctx.Metadata = metadata
		return
	}
	w.vids[v.Identifier()] = &VidContext{
		Vid:            v,
		Private:        v,
		RelationStatus: definitions.RelationshipStatus{Kind: definitions.Unrelated},
		Metadata:       metadata,
	}
}

// ForgetVid removes a VID from the wallet entirely.
func (w *Wallet) ForgetVid(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.vids, id)
}

// ListVids returns every VID identifier currently in the wallet.
func (w *Wallet) ListVids() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.vids))
	for id := range w.vids {
		out = append(out, id)
	}
	return out
}

// HasPrivateVid reports whether the wallet owns private keys for id.
func (w *Wallet) HasPrivateVid(id string) bool {
	_, err := w.getPrivateVid(id)
	return err == nil
}

// HasVerifiedVid reports whether the wallet has a verified record for id.
func (w *Wallet) HasVerifiedVid(id string) bool {
	_, err := w.GetVerifiedVid(id)
	return err == nil
}

// GetVerifiedVid resolves id (through aliases) and returns its verified
// record.
func (w *Wallet) GetVerifiedVid(id string) (definitions.VerifiedVid, error) {
	ctx, err := w.getVidContext(id)
	if err != nil {
		return nil, err
	}
	return ctx.Vid, nil
}

func (w *Wallet) getPrivateVid(id string) (definitions.PrivateVid, error) {
	ctx, err := w.getVidContext(id)
	if err != nil {
		return nil, err
	}
	if ctx.Private == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingPrivateVid, id)
	}
	return ctx.Private, nil
}

// getVidContext resolves id through aliases and returns a snapshot copy of
// its context, mirroring the reference store's clone-under-read-lock
// pattern so callers never hold the wallet lock while doing other work.
func (w *Wallet) getVidContext(id string) (VidContext, error) {
	resolved := w.TryResolveAlias(id)

	w.mu.RLock()
	defer w.mu.RUnlock()
	ctx, ok := w.vids[resolved]
	if !ok {
		return VidContext{}, fmt.Errorf("%w: %s", ErrUnverifiedVid, resolved)
	}
	return ctx.clone(), nil
}

// modifyVid resolves id through aliases and applies change to its stored
// context under the write lock.
func (w *Wallet) modifyVid(id string, change func(*VidContext) error) error {
	resolved := w.TryResolveAlias(id)

	w.mu.Lock()
	defer w.mu.Unlock()
	ctx, ok := w.vids[resolved]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnverifiedVid, resolved)
	}
	return change(ctx)
}

// SetParentForVid marks id as nested under parentID (empty string clears
// it), making it eligible for nested-message wrapping.
func (w *Wallet) SetParentForVid(id string, parentID string) error {
	if parentID != "" {
		parentID = w.TryResolveAlias(parentID)
	}
	return w.modifyVid(id, func(ctx *VidContext) error {
		ctx.ParentVid = parentID
		return nil
	})
}

// SetRelationAndStatusForVid sets both the relationship status and the
// local sender VID to use when addressing id.
func (w *Wallet) SetRelationAndStatusForVid(id string, status definitions.RelationshipStatus, relationVid string) error {
	relationVid = w.TryResolveAlias(relationVid)
	return w.modifyVid(id, func(ctx *VidContext) error {
		ctx.RelationVid = relationVid
		ctx.RelationStatus = status
		return nil
	})
}

// SetRelationStatusForVid sets only the relationship status for id.
func (w *Wallet) SetRelationStatusForVid(id string, status definitions.RelationshipStatus) error {
	return w.modifyVid(id, func(ctx *VidContext) error {
		ctx.RelationStatus = status
		return nil
	})
}

// ReplaceRelationStatusForVid sets id's relationship status and returns
// the status it replaced.
func (w *Wallet) ReplaceRelationStatusForVid(id string, status definitions.RelationshipStatus) (definitions.RelationshipStatus, error) {
	var old definitions.RelationshipStatus
	err := w.modifyVid(id, func(ctx *VidContext) error {
		old = ctx.RelationStatus
		ctx.RelationStatus = status
		return nil
	})
	return old, err
}

// SetRouteForVid records an explicit intermediary hop list to reach id,
// making it a routed (onion) destination. route must name at least two
// VIDs (the first hop plus at least the last intermediary's own drop-off
// VID, whose relation VID is the final recipient); an empty route clears it.
func (w *Wallet) SetRouteForVid(id string, route []string) error {
	if len(route) == 1 {
		return fmt.Errorf("%w: a route must have at least two VIDs", ErrInvalidRoute)
	}
	return w.modifyVid(id, func(ctx *VidContext) error {
		if len(route) == 0 {
			ctx.Tunnel = nil
		} else {
			ctx.Tunnel = append([]string{}, route...)
		}
		return nil
	})
}

// ResolveAlias returns the DID an alias points to, if any.
func (w *Wallet) ResolveAlias(alias string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, ok := w.aliases[alias]
	return id, ok
}

// TryResolveAlias resolves alias if known, otherwise returns it unchanged.
func (w *Wallet) TryResolveAlias(alias string) string {
	if id, ok := w.ResolveAlias(alias); ok {
		return id
	}
	return alias
}

// SetAlias binds a human-friendly alias to a DID.
func (w *Wallet) SetAlias(alias, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.aliases[alias] = id
}

// RelationStatusForVidPair reports the relationship status remote has with
// local as its relation VID, Unrelated if no such record exists.
func (w *Wallet) RelationStatusForVidPair(local, remote string) definitions.RelationshipStatus {
	local = w.TryResolveAlias(local)
	remote = w.TryResolveAlias(remote)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if ctx, ok := w.vids[remote]; ok && ctx.RelationVid == local {
		return ctx.RelationStatus
	}
	return definitions.RelationshipStatus{Kind: definitions.Unrelated}
}

// Export returns a flat, JSON-serializable snapshot of every VID, alias,
// and secret key in the wallet.
func (w *Wallet) Export() ([]vid.ExportVid, map[string]string, map[string][]byte) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	records := make([]vid.ExportVid, 0, len(w.vids))
	for _, ctx := range w.vids {
		rec := vid.ExportVid{
			ID:           ctx.Vid.Identifier(),
			Transport:    ctx.Vid.Endpoint(),
			PublicSigKey: ctx.Vid.PublicSigKey(),
			PublicEncKey: ctx.Vid.PublicEncKey(),
			RelationVid:  ctx.RelationVid,
			ParentVid:    ctx.ParentVid,
			Tunnel:       ctx.Tunnel,
			Metadata:     ctx.Metadata,
		}
		rec.RelationStatus = ctx.RelationStatus.Kind.String()
		rec.RelationThreadID = append([]byte{}, ctx.RelationStatus.ThreadID[:]...)
		if ctx.Private != nil {
			if priv, ok := ctx.Private.(*vid.OwnedVid); ok {
				rec.SigKey = append([]byte{}, priv.SigningKey()...)
				rec.EncKey = append([]byte{}, priv.DecryptionKey()...)
			}
		}
		records = append(records, rec)
	}

	aliases := make(map[string]string, len(w.aliases))
	for k, v := range w.aliases {
		aliases[k] = v
	}
	keys := make(map[string][]byte, len(w.keys))
	for k, v := range w.keys {
		keys[k] = append([]byte{}, v...)
	}
	return records, aliases, keys
}
