package relationship

import (
	"sync"
	"time"
)

// PendingRequests tracks outstanding relationship requests (Unidirectional
// status) by peer identifier and deadline, so a caller can resend or cancel
// requests that went unanswered — the bookkeeping spec.md's Timeout event
// assumes exists but leaves to the implementation.
type PendingRequests struct {
	mu       sync.Mutex
	deadline map[string]time.Time
}

// NewPendingRequests returns an empty tracker.
func NewPendingRequests() *PendingRequests {
	return &PendingRequests{deadline: make(map[string]time.Time)}
}

// Register records that peer now has a pending request expiring at ttl from
// now, replacing any prior deadline for the same peer (a resend restarts the
// clock).
func (p *PendingRequests) Register(peer string, ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadline[peer] = time.Now().Add(ttl)
}

// Clear removes peer from the tracker (the relationship resolved: accepted,
// cancelled, or otherwise left the Unidirectional state).
func (p *PendingRequests) Clear(peer string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.deadline, peer)
}

// Expired returns the peer identifiers whose deadline has passed and
// removes them from the tracker, for the caller to turn into Timeout events.
func (p *PendingRequests) Expired() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	var expired []string
	for peer, dl := range p.deadline {
		if now.After(dl) {
			expired = append(expired, peer)
			delete(p.deadline, peer)
		}
	}
	return expired
}
