package deal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	deals     map[string]*Deal
	creatives map[string]*Creative
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deals:     make(map[string]*Deal),
		creatives: make(map[string]*Creative),
	}
}

func (m *MemoryStore) CreateDeal(_ context.Context, d *Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.deals[d.ID] = &cp
	return nil
}

func (m *MemoryStore) GetDeal(_ context.Context, id string) (*Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, from, to Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return ErrNotFound
	}
	if d.Status != from {
		return ErrConflict
	}
	d.Status = to
	d.LastActivityAt = at
	return nil
}

func (m *MemoryStore) SetScheduledPostTime(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	d.ScheduledPostTime = &t
	return nil
}

func (m *MemoryStore) ListStale(_ context.Context, statuses []Status, cutoff time.Time) ([]*Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var out []*Deal
	for _, d := range m.deals {
		if wanted[d.Status] && d.LastActivityAt.Before(cutoff) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.Before(out[j].LastActivityAt) })
	return out, nil
}

func (m *MemoryStore) ListScheduledDue(_ context.Context, now time.Time) ([]*Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Deal
	for _, d := range m.deals {
		if d.Status == StatusScheduled && d.ScheduledPostTime != nil && !d.ScheduledPostTime.After(now) {
			cp := *d
			t := *d.ScheduledPostTime
			cp.ScheduledPostTime = &t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledPostTime.Before(*out[j].ScheduledPostTime) })
	return out, nil
}

func (m *MemoryStore) CreateCreative(_ context.Context, c *Creative) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.MediaRefs = append([]string(nil), c.MediaRefs...)
	m.creatives[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetCreative(_ context.Context, id string) (*Creative, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creatives[id]
	if !ok {
		return nil, ErrCreativeNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) LatestCreative(_ context.Context, dealID string) (*Creative, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Creative
	for _, c := range m.creatives {
		if c.DealID != dealID {
			continue
		}
		if latest == nil || c.Version > latest.Version {
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrCreativeNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryStore) ListCreatives(_ context.Context, dealID string) ([]*Creative, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Creative
	for _, c := range m.creatives {
		if c.DealID == dealID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *MemoryStore) UpdateCreativeStatus(_ context.Context, id string, status CreativeStatus, feedback string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creatives[id]
	if !ok {
		return ErrCreativeNotFound
	}
	c.Status = status
	if feedback != "" {
		c.Feedback = feedback
	}
	return nil
}
