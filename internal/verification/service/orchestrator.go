package service

import (
	"context"
	"log/slog"
	"time"

	"verigate/internal/facematch"
	"verigate/internal/verification/models"
)

// User-facing guidance per outcome. Low-confidence results get retake
// guidance rather than suggesting an identity mismatch.
const (
	msgMatch         = "Identity verified."
	msgNoMatch       = "The reference photo does not appear to match the identity document."
	msgLowConfidence = "The comparison was inconclusive. Retake both photos with better lighting and focus, then try again."
)

// Orchestrator packages the staged storage keys plus session metadata, calls
// the remote verification capability, and normalizes the response into a
// VerificationAttempt. Remote failures still produce an attempt: the slot was
// committed when the call went out.
type Orchestrator struct {
	verifier facematch.Verifier
	logger   *slog.Logger
}

func NewOrchestrator(verifier facematch.Verifier, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{verifier: verifier, logger: logger}
}

// Verify runs one automated attempt against the session snapshot. The caller
// guarantees both assets are staged and attempts remain.
func (o *Orchestrator) Verify(ctx context.Context, session *models.VerificationSession) models.VerificationAttempt {
	attemptNumber := session.NextAttemptNumber()
	req := facematch.VerifyRequest{
		CaseID:        session.CaseID,
		SessionID:     session.SessionID,
		DocumentKey:   session.DocumentAsset.StorageKey,
		ReferenceKey:  session.ReferenceAsset.StorageKey,
		PersonRole:    session.PersonRole,
		DocumentKind:  session.DocumentKind,
		AttemptNumber: attemptNumber,
	}

	resp, err := o.verifier.Verify(ctx, req)
	if err != nil {
		o.logger.ErrorContext(ctx, "verification call failed",
			"case_id", session.CaseID,
			"session_id", session.SessionID,
			"attempt_number", attemptNumber,
			"category", facematch.CategoryOf(err),
			"error", err,
		)
		return models.VerificationAttempt{
			AttemptNumber: attemptNumber,
			Outcome:       models.OutcomeError,
			Message:       facematch.UserMessage(err),
			CreatedAt:     time.Now(),
		}
	}

	attempt := models.VerificationAttempt{
		AttemptNumber:   attemptNumber,
		SimilarityScore: resp.Similarity,
		Confidence:      resp.Confidence,
		CreatedAt:       time.Now(),
	}
	if resp.ExtractedIdentity != nil {
		attempt.ExtractedIdentity = &models.Identity{
			Name:             resp.ExtractedIdentity.Name,
			NationalIDNumber: resp.ExtractedIdentity.NationalIDNumber,
			Nationality:      resp.ExtractedIdentity.Nationality,
		}
	}

	switch {
	case resp.Match:
		attempt.Outcome = models.OutcomeMatch
		attempt.Message = msgMatch
	case resp.Confidence == facematch.ConfidenceMedium:
		attempt.Outcome = models.OutcomeLowConfidenceNoMatch
		attempt.Message = msgLowConfidence
	default:
		attempt.Outcome = models.OutcomeNoMatch
		attempt.Message = msgNoMatch
	}

	o.logger.InfoContext(ctx, "verification attempt completed",
		"case_id", session.CaseID,
		"session_id", session.SessionID,
		"attempt_number", attemptNumber,
		"outcome", attempt.Outcome,
		"similarity", attempt.SimilarityScore,
		"confidence", attempt.Confidence,
	)
	return attempt
}
