package audit

import (
	"context"
	"sync"

	id "verigate/pkg/domain"
)

// Sink receives audit events. Publishers fan events out to every configured
// sink (in-memory store, Kafka, ...).
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a sink that also supports reading events back, used by tests to
// assert on the emitted trail.
type Store interface {
	Sink
	ListBySession(ctx context.Context, sessionID id.SessionID) ([]Event, error)
}

// InMemoryStore keeps audit events in memory. It favors clarity over
// performance and is the default sink for development and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.SessionID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.SessionID][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.SessionID] = append(s.events[event.SessionID], event)
	return nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID id.SessionID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[sessionID]...), nil
}
