// Package memory provides in-memory rate limit stores for tests and
// single-node deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"medgate/internal/ratelimit/models"
	id "medgate/pkg/domain"
)

// ConfigStore keeps per-operation limits in a map.
type ConfigStore struct {
	mu      sync.RWMutex
	configs map[string]models.Config
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{configs: make(map[string]models.Config)}
}

func (s *ConfigStore) Set(_ context.Context, cfg models.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.Operation] = cfg
	return nil
}

func (s *ConfigStore) Get(_ context.Context, operation string) (models.Config, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[operation]
	return cfg, ok, nil
}

func (s *ConfigStore) All(_ context.Context) ([]models.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Config, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out, nil
}

type counterKey struct {
	principal id.Principal
	operation string
}

// CounterStore keeps window counters in a map.
type CounterStore struct {
	mu       sync.RWMutex
	counters map[counterKey]models.Counter
}

func NewCounterStore() *CounterStore {
	return &CounterStore{counters: make(map[counterKey]models.Counter)}
}

func (s *CounterStore) Get(_ context.Context, principal id.Principal, operation string) (models.Counter, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[counterKey{principal, operation}]
	return c, ok, nil
}

func (s *CounterStore) Put(_ context.Context, counter models.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counterKey{counter.Principal, counter.Operation}] = counter
	return nil
}

// BypassStore keeps the bypass flags in a set.
type BypassStore struct {
	mu       sync.RWMutex
	bypassed map[id.Principal]struct{}
}

func NewBypassStore() *BypassStore {
	return &BypassStore{bypassed: make(map[id.Principal]struct{})}
}

func (s *BypassStore) Set(_ context.Context, principal id.Principal, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		s.bypassed[principal] = struct{}{}
	} else {
		delete(s.bypassed, principal)
	}
	return nil
}

func (s *BypassStore) Has(_ context.Context, principal id.Principal) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bypassed[principal]
	return ok, nil
}
