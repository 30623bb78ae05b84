package handler

import (
	"time"

	"verigate/internal/verification/models"
)

// SessionResponse is the session snapshot rendered to the interview UI.
// Presentation components are pure renderers of this state; there is no
// second attempts counter anywhere downstream.
type SessionResponse struct {
	SessionID    string `json:"session_id"`
	CaseID       string `json:"case_id"`
	PersonRole   string `json:"person_role"`
	DocumentKind string `json:"document_kind"`
	State        string `json:"state"`

	ReferenceAsset *AssetResponse `json:"reference_asset,omitempty"`
	DocumentAsset  *AssetResponse `json:"document_asset,omitempty"`

	AttemptsRemaining int               `json:"attempts_remaining"`
	Attempts          []AttemptResponse `json:"attempts"`
	LastOutcome       string            `json:"last_outcome,omitempty"`
	LastMessage       string            `json:"last_message,omitempty"`

	Override *OverrideResponse `json:"override,omitempty"`

	// Established is present once identity is Verified or OverrideAccepted;
	// it seeds the interview session.
	Established *EstablishedResponse `json:"established_identity,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AssetResponse struct {
	FileName string    `json:"file_name"`
	ByteSize int64     `json:"byte_size"`
	MimeType string    `json:"mime_type"`
	StagedAt time.Time `json:"staged_at"`
}

type AttemptResponse struct {
	AttemptNumber   int       `json:"attempt_number"`
	Outcome         string    `json:"outcome"`
	SimilarityScore int       `json:"similarity_score"`
	Confidence      string    `json:"confidence,omitempty"`
	Message         string    `json:"message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type OverrideResponse struct {
	EnteredName          string    `json:"entered_name"`
	EnteredNationality   string    `json:"entered_nationality"`
	BasedOnAttemptNumber int       `json:"based_on_attempt_number"`
	CreatedAt            time.Time `json:"created_at"`
}

type EstablishedResponse struct {
	PersonName string `json:"person_name"`
	PersonRole string `json:"person_role"`
	Method     string `json:"verification_method"`
}

// FromSession converts a domain session to its HTTP snapshot.
func FromSession(session *models.VerificationSession, maxAttempts int) *SessionResponse {
	resp := &SessionResponse{
		SessionID:         session.SessionID.String(),
		CaseID:            session.CaseID.String(),
		PersonRole:        session.PersonRole.String(),
		DocumentKind:      session.DocumentKind.String(),
		State:             string(session.State),
		AttemptsRemaining: session.RemainingAttempts(maxAttempts),
		Attempts:          make([]AttemptResponse, 0, len(session.Attempts)),
		CreatedAt:         session.CreatedAt,
		UpdatedAt:         session.UpdatedAt,
	}

	resp.ReferenceAsset = assetResponse(session.ReferenceAsset)
	resp.DocumentAsset = assetResponse(session.DocumentAsset)

	for _, a := range session.Attempts {
		resp.Attempts = append(resp.Attempts, AttemptResponse{
			AttemptNumber:   a.AttemptNumber,
			Outcome:         string(a.Outcome),
			SimilarityScore: a.SimilarityScore,
			Confidence:      string(a.Confidence),
			Message:         a.Message,
			CreatedAt:       a.CreatedAt,
		})
	}
	if last := session.LatestAttempt(); last != nil {
		resp.LastOutcome = string(last.Outcome)
		resp.LastMessage = last.Message
	}

	if session.Override != nil {
		resp.Override = &OverrideResponse{
			EnteredName:          session.Override.EnteredName,
			EnteredNationality:   session.Override.EnteredNationality,
			BasedOnAttemptNumber: session.Override.BasedOnAttemptNumber,
			CreatedAt:            session.Override.CreatedAt,
		}
	}

	if established, ok := session.EstablishedIdentity(); ok {
		resp.Established = &EstablishedResponse{
			PersonName: established.PersonName,
			PersonRole: established.PersonRole.String(),
			Method:     string(established.Method),
		}
	}
	return resp
}

func assetResponse(asset *models.UploadedAsset) *AssetResponse {
	if asset == nil {
		return nil
	}
	return &AssetResponse{
		FileName: asset.FileName,
		ByteSize: asset.ByteSize,
		MimeType: asset.MimeType,
		StagedAt: asset.StagedAt,
	}
}
