package provider

import (
	"context"
	"sync"

	id "medgate/pkg/domain"
)

// Store persists provider registrations.
type Store interface {
	Put(ctx context.Context, p Provider) error
	Get(ctx context.Context, principal id.Principal) (Provider, bool, error)
}

// MemoryStore keeps providers in a map.
type MemoryStore struct {
	mu        sync.RWMutex
	providers map[id.Principal]Provider
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{providers: make(map[id.Principal]Provider)}
}

func (s *MemoryStore) Put(_ context.Context, p Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.Principal] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, principal id.Principal) (Provider, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[principal]
	return p, ok, nil
}
