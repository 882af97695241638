package access

import (
	"context"
	"sync"

	id "medgate/pkg/domain"
)

// Store persists access grants, one per (patient, grantee) pair.
type Store interface {
	Put(ctx context.Context, grant Grant) error
	Get(ctx context.Context, patient, grantee id.Principal) (Grant, bool, error)
	Delete(ctx context.Context, patient, grantee id.Principal) (bool, error)
	ListByPatient(ctx context.Context, patient id.Principal) ([]Grant, error)
}

type grantKey struct {
	patient id.Principal
	grantee id.Principal
}

// MemoryStore keeps grants in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[grantKey]Grant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[grantKey]Grant)}
}

func (s *MemoryStore) Put(_ context.Context, grant Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantKey{grant.Patient, grant.Grantee}] = grant
	return nil
}

func (s *MemoryStore) Get(_ context.Context, patient, grantee id.Principal) (Grant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantKey{patient, grantee}]
	return g, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, patient, grantee id.Principal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := grantKey{patient, grantee}
	_, ok := s.grants[key]
	delete(s.grants, key)
	return ok, nil
}

func (s *MemoryStore) ListByPatient(_ context.Context, patient id.Principal) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Grant
	for key, g := range s.grants {
		if key.patient == patient {
			out = append(out, g)
		}
	}
	return out, nil
}
