package emergency

import (
	"context"
	"sync"

	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

// maxTrailEntries caps each grant's trail. Appends past the cap are
// rejected; the caller decides whether that is fatal.
const maxTrailEntries = 1000

// Store persists emergency grants and their trails.
type Store interface {
	Create(ctx context.Context, access Access) (Access, error)
	Get(ctx context.Context, accessID uint64) (Access, bool, error)
	Update(ctx context.Context, access Access) error
	ListByPatient(ctx context.Context, patient id.Principal) ([]Access, error)
	ListActive(ctx context.Context) ([]Access, error)
	AppendTrail(ctx context.Context, entry TrailEntry) error
	Trail(ctx context.Context, accessID uint64) ([]TrailEntry, error)
}

// MemoryStore keeps grants and trails in maps.
type MemoryStore struct {
	mu        sync.RWMutex
	grants    map[uint64]Access
	byPatient map[id.Principal][]uint64
	trails    map[uint64][]TrailEntry
	nextID    uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants:    make(map[uint64]Access),
		byPatient: make(map[id.Principal][]uint64),
		trails:    make(map[uint64][]TrailEntry),
		nextID:    1,
	}
}

func (s *MemoryStore) Create(_ context.Context, access Access) (Access, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	access.ID = s.nextID
	s.nextID++
	s.grants[access.ID] = access
	s.byPatient[access.Patient] = append(s.byPatient[access.Patient], access.ID)
	return access, nil
}

func (s *MemoryStore) Get(_ context.Context, accessID uint64) (Access, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.grants[accessID]
	return a, ok, nil
}

func (s *MemoryStore) Update(_ context.Context, access Access) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[access.ID]; !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "emergency access %d not found", access.ID)
	}
	s.grants[access.ID] = access
	return nil
}

func (s *MemoryStore) ListByPatient(_ context.Context, patient id.Principal) ([]Access, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byPatient[patient]
	out := make([]Access, 0, len(ids))
	for _, accessID := range ids {
		out = append(out, s.grants[accessID])
	}
	return out, nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]Access, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Access
	for _, a := range s.grants {
		if a.Status == StatusActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendTrail(_ context.Context, entry TrailEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trail := s.trails[entry.AccessID]
	if len(trail) >= maxTrailEntries {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "trail for access %d is full", entry.AccessID)
	}
	s.trails[entry.AccessID] = append(trail, entry)
	return nil
}

func (s *MemoryStore) Trail(_ context.Context, accessID uint64) ([]TrailEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trail := s.trails[accessID]
	out := make([]TrailEntry, len(trail))
	copy(out, trail)
	return out, nil
}
