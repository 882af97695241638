package identity

import (
	"context"
	"sync"

	id "medgate/pkg/domain"
)

// Store persists role assignments.
type Store interface {
	Set(ctx context.Context, principal id.Principal, role Role) error
	Get(ctx context.Context, principal id.Principal) (Role, bool, error)
}

// MemoryStore keeps role assignments in a map.
type MemoryStore struct {
	mu    sync.RWMutex
	roles map[id.Principal]Role
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{roles: make(map[id.Principal]Role)}
}

func (s *MemoryStore) Set(_ context.Context, principal id.Principal, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[principal] = role
	return nil
}

func (s *MemoryStore) Get(_ context.Context, principal id.Principal) (Role, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[principal]
	return role, ok, nil
}
