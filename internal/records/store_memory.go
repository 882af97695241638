package records

import (
	"context"
	"sync"

	id "medgate/pkg/domain"
)

// Store persists record metadata.
type Store interface {
	Create(ctx context.Context, record Record) (Record, error)
	Get(ctx context.Context, recordID id.RecordID) (Record, bool, error)
	ListByPatient(ctx context.Context, patient id.Principal) ([]Record, error)
}

// MemoryStore keeps records in a map and assigns sequential IDs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[id.RecordID]Record
	byPat   map[id.Principal][]id.RecordID
	nextID  id.RecordID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[id.RecordID]Record),
		byPat:   make(map[id.Principal][]id.RecordID),
		nextID:  1,
	}
}

func (s *MemoryStore) Create(_ context.Context, record Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = s.nextID
	s.nextID++
	s.records[record.ID] = record
	s.byPat[record.Patient] = append(s.byPat[record.Patient], record.ID)
	return record, nil
}

func (s *MemoryStore) Get(_ context.Context, recordID id.RecordID) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	return r, ok, nil
}

func (s *MemoryStore) ListByPatient(_ context.Context, patient id.Principal) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byPat[patient]
	out := make([]Record, 0, len(ids))
	for _, rid := range ids {
		out = append(out, s.records[rid])
	}
	return out, nil
}
