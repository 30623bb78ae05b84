package facematch

import (
	id "verigate/pkg/domain"
)

// ConfidenceLevel is the categorical strength accompanying a similarity score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// IsValid checks if the confidence level is one of the supported values.
func (c ConfidenceLevel) IsValid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// ExtractedIdentity is the identity the verifier parsed from the document.
type ExtractedIdentity struct {
	Name             string `json:"name"`
	NationalIDNumber string `json:"national_id_number"`
	Nationality      string `json:"nationality"`
}

// ManualIdentity carries investigator-entered identity fields for an
// override submission.
type ManualIdentity struct {
	Name             string `json:"name"`
	NationalIDNumber string `json:"national_id_number"`
	Nationality      string `json:"nationality"`
}

// VerifyRequest is the wire request for the remote verification capability.
type VerifyRequest struct {
	CaseID         id.CaseID       `json:"case_id"`
	SessionID      id.SessionID    `json:"session_id"`
	DocumentKey    string          `json:"document_key"`
	ReferenceKey   string          `json:"reference_key"`
	PersonRole     id.PersonRole   `json:"person_role"`
	DocumentKind   id.DocumentKind `json:"document_kind"`
	AttemptNumber  int             `json:"attempt_number"`
	ManualOverride bool            `json:"manual_override,omitempty"`
	OverrideReason string          `json:"override_reason,omitempty"`
	ManualIdentity *ManualIdentity `json:"manual_identity,omitempty"`
}

// VerifyResponse is the wire response from the remote verification capability.
type VerifyResponse struct {
	Match             bool               `json:"match"`
	Similarity        int                `json:"similarity"`
	Confidence        ConfidenceLevel    `json:"confidence"`
	ExtractedIdentity *ExtractedIdentity `json:"extracted_identity,omitempty"`
	AttemptNumber     int                `json:"attempt_number"`
}
