package payment

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]*Payment // keyed by deal ID
	payouts  map[string]string   // userID -> address
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*Payment),
		payouts:  make(map[string]string),
	}
}

func (s *MemoryStore) CreatePayment(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.DealID]; ok {
		return ErrAlreadyExists
	}
	cp := *p
	s.payments[p.DealID] = &cp
	return nil
}

func (s *MemoryStore) GetByDeal(_ context.Context, dealID string) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[dealID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, dealID string, from, to Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[dealID]
	if !ok {
		return ErrNotFound
	}
	if p.Status != from {
		return ErrConflict
	}
	p.Status = to
	switch to {
	case StatusPaid:
		t := at
		p.PaidAt = &t
	case StatusReleased:
		t := at
		p.ReleasedAt = &t
	}
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status Status) ([]*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Payment
	for _, p := range s.payments {
		if p.Status == status {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) SetPayoutAddress(_ context.Context, userID, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payouts[userID] = addr
	return nil
}

func (s *MemoryStore) PayoutAddress(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.payouts[userID]
	if !ok || addr == "" {
		return "", ErrNoPayoutAddress
	}
	return addr, nil
}
