// Package store persists verification sessions. Stores are interface-driven
// so the service stays testable and deployments can choose memory, Redis, or
// Postgres without rewiring business code. Stores are pure I/O; all state
// machine logic belongs in the service.
package store

import (
	"context"

	"verigate/internal/verification/models"
	id "verigate/pkg/domain"
)

type SessionStore interface {
	// Save upserts the full session snapshot.
	Save(ctx context.Context, session *models.VerificationSession) error
	// FindByID returns sentinel.ErrNotFound when the session does not exist.
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.VerificationSession, error)
}
