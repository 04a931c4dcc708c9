package memory

import (
	"context"
	"sync"

	audit "signupgate/pkg/platform/audit"
)

// InMemoryStore keeps audit events in process. Used when no Kafka brokers are
// configured and in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListAll returns a copy of every stored event in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...), nil
}

// ListByAction returns the stored events with the given action.
func (s *InMemoryStore) ListByAction(_ context.Context, action audit.AuditEvent) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for _, e := range s.events {
		if e.Action == string(action) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns the most recent N events.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := max(len(s.events)-limit, 0)
	return append([]audit.Event{}, s.events[start:]...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
