// Package memory provides an in-memory audit store for tests and
// single-node deployments.
package memory

import (
	"context"
	"sync"

	"medgate/internal/audit/models"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

// Store keeps the full log in append order plus secondary indices so the
// per-record, per-actor and per-patient views don't scan the whole log.
type Store struct {
	mu      sync.RWMutex
	entries []models.Entry
	nextID  uint64

	byRecord  map[id.RecordID][]int
	byActor   map[id.Principal][]int
	byPatient map[id.Principal][]int
}

func NewStore() *Store {
	return &Store{
		nextID:    1,
		byRecord:  make(map[id.RecordID][]int),
		byActor:   make(map[id.Principal][]int),
		byPatient: make(map[id.Principal][]int),
	}
}

func (s *Store) Append(_ context.Context, entry models.Entry) (models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID
	s.nextID++

	idx := len(s.entries)
	s.entries = append(s.entries, entry)
	if entry.RecordID != nil {
		s.byRecord[*entry.RecordID] = append(s.byRecord[*entry.RecordID], idx)
	}
	s.byActor[entry.Actor] = append(s.byActor[entry.Actor], idx)
	s.byPatient[entry.Patient] = append(s.byPatient[entry.Patient], idx)

	return entry, nil
}

func (s *Store) GetByID(_ context.Context, entryID uint64) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entryID == 0 || entryID >= s.nextID {
		return models.Entry{}, dErrors.Newf(dErrors.CodeNotFound, "audit entry %d not found", entryID)
	}
	return s.entries[entryID-1], nil
}

func (s *Store) ListByRecord(_ context.Context, recordID id.RecordID) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byRecord[recordID]), nil
}

func (s *Store) ListByActor(_ context.Context, actor id.Principal) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byActor[actor]), nil
}

func (s *Store) ListByPatient(_ context.Context, patient id.Principal) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byPatient[patient]), nil
}

func (s *Store) ListByAction(_ context.Context, action models.Action) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Entry
	for _, e := range s.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListByResult(_ context.Context, result models.Result) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Entry
	for _, e := range s.entries {
		if e.Result == result {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListByTimeRange(_ context.Context, tr models.TimeRange) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Entry
	for _, e := range s.entries {
		if !e.Timestamp.Before(tr.Start) && !e.Timestamp.After(tr.End) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]models.Entry, 0, limit)
	for i := len(s.entries) - 1; i >= len(s.entries)-limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *Store) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.entries)), nil
}

func (s *Store) collect(idxs []int) []models.Entry {
	out := make([]models.Entry, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.entries[i])
	}
	return out
}
