// Package models holds the verification session domain model: the session
// state machine data, staged assets, attempts, and the manual override
// record. All mutation goes through the verification service; nothing else
// owns this state.
package models

import (
	"time"

	"verigate/internal/facematch"
	id "verigate/pkg/domain"
)

// DefaultMaxAttempts bounds automated verification attempts per session.
const DefaultMaxAttempts = 3

// SessionState is the explicit state of the verification session machine.
type SessionState string

const (
	// StateEmpty: fewer than both required assets staged.
	StateEmpty SessionState = "empty"
	// StateAssetsStaged: both reference photo and document staged.
	StateAssetsStaged SessionState = "assets_staged"
	// StateVerifying: a remote verification call is in flight. Exclusive;
	// no verify/retry/override intents are accepted while set.
	StateVerifying SessionState = "verifying"
	// StateVerified: latest attempt matched; identity established.
	StateVerified SessionState = "verified"
	// StateAwaitingOverride: attempts exhausted without a match.
	StateAwaitingOverride SessionState = "awaiting_override"
	// StateOverrideAccepted: investigator-asserted identity accepted.
	StateOverrideAccepted SessionState = "override_accepted"
	// StateEnded: session explicitly terminated; terminal.
	StateEnded SessionState = "ended"
)

// AssetRole distinguishes the two staged uploads.
type AssetRole string

const (
	AssetReference AssetRole = "reference"
	AssetDocument  AssetRole = "document"
)

// ParseAssetRole validates an asset role string.
func ParseAssetRole(s string) (AssetRole, bool) {
	r := AssetRole(s)
	if r == AssetReference || r == AssetDocument {
		return r, true
	}
	return "", false
}

// Outcome classifies one automated verification attempt.
type Outcome string

const (
	OutcomeMatch Outcome = "match"
	// OutcomeNoMatch: verifier is confident the faces do not match.
	OutcomeNoMatch Outcome = "no_match"
	// OutcomeLowConfidenceNoMatch: no match, but medium confidence; better
	// quality photos may change the result. Surfaced with distinct guidance.
	OutcomeLowConfidenceNoMatch Outcome = "low_confidence_no_match"
	// OutcomeError: the remote call itself failed. Still consumes an attempt
	// since the attempt slot was committed.
	OutcomeError Outcome = "error"
)

// VerificationMethod records how identity was established.
type VerificationMethod string

const (
	MethodAutomated VerificationMethod = "automated"
	MethodOverride  VerificationMethod = "override"
)

// UploadedAsset is one staged file. StorageKey is assigned by the storage
// backend after upload.
type UploadedAsset struct {
	FileName   string    `json:"file_name"`
	ByteSize   int64     `json:"byte_size"`
	MimeType   string    `json:"mime_type"`
	StorageKey string    `json:"storage_key"`
	StagedAt   time.Time `json:"staged_at"`
}

// SameFile reports whether two assets resolve to the same underlying file
// (same name and size). Used to reject cross-role duplication before staging.
func (a UploadedAsset) SameFile(name string, size int64) bool {
	return a.FileName == name && a.ByteSize == size
}

// Identity is a person identity tuple, either extracted by the verifier or
// entered manually for an override.
type Identity struct {
	Name             string `json:"name"`
	NationalIDNumber string `json:"national_id_number"`
	Nationality      string `json:"nationality"`
}

// VerificationAttempt is one automated verification call. Never mutated
// after creation.
type VerificationAttempt struct {
	AttemptNumber     int                       `json:"attempt_number"`
	Outcome           Outcome                   `json:"outcome"`
	SimilarityScore   int                       `json:"similarity_score"`
	Confidence        facematch.ConfidenceLevel `json:"confidence,omitempty"`
	ExtractedIdentity *Identity                 `json:"extracted_identity,omitempty"`
	Message           string                    `json:"message,omitempty"`
	CreatedAt         time.Time                 `json:"created_at"`
}

// ManualOverrideRecord is created when automation is bypassed. Persisted as
// part of the session's terminal record, never edited.
type ManualOverrideRecord struct {
	EnteredName          string    `json:"entered_name"`
	EnteredNationalID    string    `json:"entered_national_id"`
	EnteredNationality   string    `json:"entered_nationality"`
	Reason               string    `json:"reason"`
	BasedOnAttemptNumber int       `json:"based_on_attempt_number"`
	SubmittedBy          string    `json:"submitted_by,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// EstablishedIdentity is the final tuple consumed by the interview flow.
type EstablishedIdentity struct {
	PersonName string             `json:"person_name"`
	PersonRole id.PersonRole      `json:"person_role"`
	Method     VerificationMethod `json:"verification_method"`
}

// VerificationSession is one identity verification workflow, owned
// exclusively by the verification service.
type VerificationSession struct {
	CaseID       id.CaseID       `json:"case_id"`
	SessionID    id.SessionID    `json:"session_id"`
	PersonRole   id.PersonRole   `json:"person_role"`
	DocumentKind id.DocumentKind `json:"document_kind"`

	ReferenceAsset *UploadedAsset `json:"reference_asset,omitempty"`
	DocumentAsset  *UploadedAsset `json:"document_asset,omitempty"`

	// Attempts is append-only; entries are never mutated.
	Attempts []VerificationAttempt `json:"attempts"`
	Override *ManualOverrideRecord `json:"override,omitempty"`

	State SessionState `json:"state"`

	// PersonName is set from the extracted identity on a match, or from the
	// override record, for downstream display.
	PersonName string             `json:"person_name,omitempty"`
	Method     VerificationMethod `json:"verification_method,omitempty"`

	// RequestToken increases on every accepted verify intent so responses
	// belonging to a superseded request are provably ignorable.
	RequestToken uint64 `json:"request_token"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BothAssetsStaged reports whether the reference photo and document are both
// present.
func (s *VerificationSession) BothAssetsStaged() bool {
	return s.ReferenceAsset != nil && s.DocumentAsset != nil
}

// AssetForRole returns the staged asset for a role, or nil.
func (s *VerificationSession) AssetForRole(role AssetRole) *UploadedAsset {
	if role == AssetReference {
		return s.ReferenceAsset
	}
	return s.DocumentAsset
}

// RemainingAttempts is the attempt-tracker view: pure function of the
// attempts slice, never independent state.
func (s *VerificationSession) RemainingAttempts(maxAttempts int) int {
	remaining := maxAttempts - len(s.Attempts)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AttemptsExhausted reports whether no automated attempts remain.
func (s *VerificationSession) AttemptsExhausted(maxAttempts int) bool {
	return s.RemainingAttempts(maxAttempts) <= 0
}

// NextAttemptNumber is 1-based and monotonic within the session.
func (s *VerificationSession) NextAttemptNumber() int {
	return len(s.Attempts) + 1
}

// LatestAttempt returns the most recent attempt, or nil.
func (s *VerificationSession) LatestAttempt() *VerificationAttempt {
	if len(s.Attempts) == 0 {
		return nil
	}
	return &s.Attempts[len(s.Attempts)-1]
}

// IsTerminal reports whether the session accepts no further intents other
// than reads. Verified is effectively terminal for this subsystem but is
// kept distinct so downstream consumers record how identity was established.
func (s *VerificationSession) IsTerminal() bool {
	return s.State == StateOverrideAccepted || s.State == StateEnded
}

// RoleFrozen reports whether the person role may no longer change: selectable
// until verification starts, then frozen.
func (s *VerificationSession) RoleFrozen() bool {
	return len(s.Attempts) > 0 || s.State == StateVerifying
}

// SwitchDocumentKind changes the document kind, discarding a staged document
// of the other kind. The reference photo is untouched.
func (s *VerificationSession) SwitchDocumentKind(kind id.DocumentKind) {
	if s.DocumentKind == kind {
		return
	}
	s.DocumentKind = kind
	s.DocumentAsset = nil
	s.RecomputeStagingState()
}

// RecomputeStagingState settles Empty vs AssetsStaged after asset changes.
// Only meaningful in pre-verification states.
func (s *VerificationSession) RecomputeStagingState() {
	if s.State != StateEmpty && s.State != StateAssetsStaged {
		return
	}
	if s.BothAssetsStaged() {
		s.State = StateAssetsStaged
	} else {
		s.State = StateEmpty
	}
}

// EstablishedIdentity returns the final identity tuple once the session is
// Verified or OverrideAccepted.
func (s *VerificationSession) EstablishedIdentity() (*EstablishedIdentity, bool) {
	if s.State != StateVerified && s.State != StateOverrideAccepted {
		return nil, false
	}
	return &EstablishedIdentity{
		PersonName: s.PersonName,
		PersonRole: s.PersonRole,
		Method:     s.Method,
	}, true
}
