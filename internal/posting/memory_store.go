package posting

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	posts    map[string]*Post  // keyed by deal ID
	channels map[string]string // userID -> channel ref
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory post store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:    make(map[string]*Post),
		channels: make(map[string]string),
	}
}

func (s *MemoryStore) CreatePost(_ context.Context, p *Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[p.DealID]; ok {
		return ErrAlreadyPosted
	}
	cp := *p
	s.posts[p.DealID] = &cp
	return nil
}

func (s *MemoryStore) GetByDeal(_ context.Context, dealID string) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[dealID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) RecordCheck(_ context.Context, postID string, deleted, edited bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.byID(postID)
	if p == nil {
		return ErrNotFound
	}
	p.IsDeleted = deleted
	p.IsEdited = edited
	t := at
	p.LastCheckedAt = &t
	return nil
}

func (s *MemoryStore) SetVerifiedAt(_ context.Context, postID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.byID(postID)
	if p == nil {
		return ErrNotFound
	}
	t := at
	p.VerifiedAt = &t
	return nil
}

func (s *MemoryStore) ListUnverified(_ context.Context) ([]*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Post
	for _, p := range s.posts {
		if p.VerifiedAt == nil {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.Before(out[j].PostedAt) })
	return out, nil
}

func (s *MemoryStore) SetChannelRef(_ context.Context, userID, channelRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[userID] = channelRef
	return nil
}

func (s *MemoryStore) ChannelRef(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.channels[userID]
	if !ok || ref == "" {
		return "", ErrNoChannelRef
	}
	return ref, nil
}

func (s *MemoryStore) byID(postID string) *Post {
	for _, p := range s.posts {
		if p.ID == postID {
			return p
		}
	}
	return nil
}
