package events

import (
	"context"
	"sync"
)

// Memory is an in-process publisher that records every event it receives.
// It backs tests and single-node deployments where no broker is configured.
type Memory struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByTopic returns published events for one topic, in publish order.
func (m *Memory) ByTopic(topic string) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.Topic() == topic {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) Close() error { return nil }
