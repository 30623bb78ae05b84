package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "verigate/pkg/domain-errors"
)

// CaseID identifies the investigation case a verification session belongs to.
// It is assigned by the case-management system, so we treat it as an opaque
// string and only enforce shape at the boundary.
type CaseID string

const maxCaseIDLength = 64

// ParseCaseID validates and returns a CaseID.
func ParseCaseID(s string) (CaseID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "case_id is required")
	}
	if len(s) > maxCaseIDLength {
		return "", dErrors.New(dErrors.CodeValidation, "case_id must be at most 64 characters")
	}
	return CaseID(s), nil
}

func (c CaseID) String() string { return string(c) }

// IsNil returns true if the case ID is empty.
func (c CaseID) IsNil() bool { return c == "" }

// SessionID identifies one verification session. Sessions are created by this
// service, so IDs are UUIDs minted here.
type SessionID uuid.UUID

// NewSessionID mints a fresh session ID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// ParseSessionID validates and returns a SessionID.
func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, dErrors.New(dErrors.CodeValidation, "session_id must be a valid UUID")
	}
	return SessionID(u), nil
}

func (s SessionID) String() string { return uuid.UUID(s).String() }

// MarshalText renders the canonical UUID form so JSON carries a string, not a
// byte array.
func (s SessionID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*s = SessionID(u)
	return nil
}

// IsNil returns true if the session ID is the zero UUID.
func (s SessionID) IsNil() bool { return s == SessionID(uuid.Nil) }
