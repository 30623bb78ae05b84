package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"verigate/internal/verification/models"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/sentinel"
)

// InMemorySessionStore keeps sessions in memory. It is the default backend
// for development and tests and intentionally favors clarity over
// performance.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID][]byte
}

func NewInMemory() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[id.SessionID][]byte)}
}

// Save stores a deep copy via JSON so callers cannot alias stored state.
func (s *InMemorySessionStore) Save(_ context.Context, session *models.VerificationSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = raw
	return nil
}

func (s *InMemorySessionStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.VerificationSession, error) {
	s.mu.RLock()
	raw, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	var session models.VerificationSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}
