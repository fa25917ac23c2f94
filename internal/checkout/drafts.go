package checkout

import (
	"sync"
	"time"

	"github.com/craftline/storefront/internal/order"
)

// Draft is the cart snapshot kept between gateway-order creation and the
// capture webhook. No order row exists while a draft is pending; the webhook
// (or the reconciliation worker) turns it into one.
type Draft struct {
	GatewayOrderID string
	UserID         string
	AmountPaise    int64
	Currency       string
	Items          []order.Item
	Address        order.ShippingAddress
	Notes          string
	Failed         bool
	CreatedAt      time.Time
}

// DraftStore holds pending drafts in memory with a TTL. Abandoned checkouts
// need no cleanup beyond eviction: the gateway order simply expires unpaid.
type DraftStore struct {
	mu     sync.RWMutex
	ttl    time.Duration
	drafts map[string]*Draft
}

func NewDraftStore(ttl time.Duration) *DraftStore {
	return &DraftStore{ttl: ttl, drafts: make(map[string]*Draft)}
}

func (s *DraftStore) Put(d *Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	d.CreatedAt = time.Now()
	s.drafts[d.GatewayOrderID] = d
}

func (s *DraftStore) Get(gatewayOrderID string) (*Draft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[gatewayOrderID]
	if !ok || time.Since(d.CreatedAt) > s.ttl {
		return nil, false
	}
	return d, true
}

func (s *DraftStore) Delete(gatewayOrderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, gatewayOrderID)
}

// MarkFailed flags a draft whose payment the gateway reported as failed.
// Reports whether a draft was found.
func (s *DraftStore) MarkFailed(gatewayOrderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[gatewayOrderID]
	if !ok {
		return false
	}
	d.Failed = true
	return true
}

// Stale returns pending drafts older than olderThan, for the reconciliation
// worker to re-query against the gateway.
func (s *DraftStore) Stale(olderThan time.Duration) []Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Draft
	cutoff := time.Now().Add(-olderThan)
	for _, d := range s.drafts {
		if !d.Failed && d.CreatedAt.Before(cutoff) && time.Since(d.CreatedAt) <= s.ttl {
			out = append(out, *d)
		}
	}
	return out
}

func (s *DraftStore) evictLocked() {
	for k, d := range s.drafts {
		if time.Since(d.CreatedAt) > s.ttl {
			delete(s.drafts, k)
		}
	}
}
