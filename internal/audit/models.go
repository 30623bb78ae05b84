package audit

import (
	"time"

	id "verigate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. Identity
// establishment for a recorded interview is evidential, so compliance events
// require durable storage and long retention.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/evidential significance:
	// verification outcomes, manual overrides, session termination.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility: uploads, cleanup failures, remote call errors.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category       EventCategory `json:"category"`
	Timestamp      time.Time     `json:"timestamp"`
	CaseID         id.CaseID     `json:"case_id"`
	SessionID      id.SessionID  `json:"session_id"`
	InvestigatorID string        `json:"investigator_id,omitempty"`
	Action         string        `json:"action"`
	AttemptNumber  int           `json:"attempt_number,omitempty"`
	Outcome        string        `json:"outcome,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	RequestID      string        `json:"request_id,omitempty"`
}

// Action names for the verification workflow.
type Action string

const (
	ActionSessionCreated     Action = "session_created"
	ActionAssetStaged        Action = "asset_staged"
	ActionVerifyRequested    Action = "verify_requested"
	ActionVerifyCompleted    Action = "verify_completed"
	ActionAttemptsExhausted  Action = "attempts_exhausted"
	ActionRetryRequested     Action = "retry_requested"
	ActionCleanupFailed      Action = "cleanup_failed"
	ActionOverrideSubmitted  Action = "override_submitted"
	ActionOverrideAccepted   Action = "override_accepted"
	ActionOverrideRejected   Action = "override_rejected"
	ActionSessionEnded       Action = "session_ended"
	ActionStaleResponseDrop  Action = "stale_response_dropped"
)
