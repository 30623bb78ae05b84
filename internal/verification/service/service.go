// Package service implements the identity verification session controller:
// the state machine governing asset staging, bounded automated verification
// attempts, and the audited manual-override fallback. It exclusively owns
// VerificationSession state; handlers dispatch intents and render snapshots.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"verigate/internal/audit"
	"verigate/internal/facematch"
	"verigate/internal/objectstore"
	"verigate/internal/verification/metrics"
	"verigate/internal/verification/models"
	"verigate/internal/verification/override"
	"verigate/internal/verification/store"
	"verigate/internal/verification/uploader"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/sentinel"
	"verigate/pkg/requestcontext"
)

const cleanupTimeout = 10 * time.Second

type Service struct {
	sessions     store.SessionStore
	uploader     *uploader.Uploader
	orchestrator *Orchestrator
	verifier     facematch.Verifier
	auditor      *audit.Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	maxAttempts  int

	// locks serializes intents per session so duplicate verify/retry/override
	// requests cannot race attempt numbers. Remote calls run outside the lock.
	locks sync.Map // id.SessionID -> *sync.Mutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher *audit.Publisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithMaxAttempts(max int) Option {
	return func(s *Service) { s.maxAttempts = max }
}

func New(sessions store.SessionStore, up *uploader.Uploader, verifier facematch.Verifier, opts ...Option) (*Service, error) {
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if up == nil {
		return nil, errors.New("uploader is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	s := &Service{
		sessions:    sessions,
		uploader:    up,
		verifier:    verifier,
		logger:      slog.Default(),
		maxAttempts: models.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.orchestrator = NewOrchestrator(verifier, s.logger)
	return s, nil
}

// MaxAttempts reports the configured attempt bound.
func (s *Service) MaxAttempts() int { return s.maxAttempts }

func (s *Service) lockFor(sessionID id.SessionID) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateSession starts a fresh verification session for a case participant.
func (s *Service) CreateSession(ctx context.Context, caseID id.CaseID, role id.PersonRole, kind id.DocumentKind) (*models.VerificationSession, error) {
	now := requestcontext.Now(ctx)
	session := &models.VerificationSession{
		CaseID:       caseID,
		SessionID:    id.NewSessionID(),
		PersonRole:   role,
		DocumentKind: kind,
		State:        models.StateEmpty,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}
	s.emitAudit(ctx, session, audit.ActionSessionCreated, audit.CategoryOperations, "", 0)
	return session, nil
}

// GetSession returns the current session snapshot.
func (s *Service) GetSession(ctx context.Context, sessionID id.SessionID) (*models.VerificationSession, error) {
	return s.load(ctx, sessionID)
}

// SetPersonRole changes the participant role. Selectable until verification
// starts, then frozen.
func (s *Service) SetPersonRole(ctx context.Context, sessionID id.SessionID, role id.PersonRole) (*models.VerificationSession, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() || session.State == models.StateVerified {
		return nil, dErrors.New(dErrors.CodeConflict, "the session is already complete")
	}
	if session.RoleFrozen() {
		return nil, dErrors.New(dErrors.CodeConflict, "the person role cannot change once verification has started")
	}
	session.PersonRole = role
	return s.save(ctx, session)
}

// SetDocumentKind switches the document kind. A staged document of the other
// kind is discarded; the reference photo stays.
func (s *Service) SetDocumentKind(ctx context.Context, sessionID id.SessionID, kind id.DocumentKind) (*models.VerificationSession, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.State {
	case models.StateEmpty, models.StateAssetsStaged:
	default:
		return nil, dErrors.New(dErrors.CodeConflict, "the document kind cannot change in the current session state")
	}
	session.SwitchDocumentKind(kind)
	return s.save(ctx, session)
}

// StageAsset validates and uploads one file for the given role. A failed
// stage leaves previously staged assets untouched.
func (s *Service) StageAsset(ctx context.Context, sessionID id.SessionID, role models.AssetRole, file uploader.File, progress objectstore.ProgressFunc) (*models.VerificationSession, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.State {
	case models.StateEmpty, models.StateAssetsStaged:
	default:
		return nil, dErrors.New(dErrors.CodeConflict, "assets cannot be staged in the current session state")
	}

	asset, err := s.uploader.Stage(ctx, session, role, file, progress)
	if err != nil {
		s.metrics.ObserveUpload(string(role), "rejected", file.Size)
		return nil, err
	}

	if role == models.AssetReference {
		session.ReferenceAsset = asset
	} else {
		session.DocumentAsset = asset
	}
	session.RecomputeStagingState()

	saved, err := s.save(ctx, session)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveUpload(string(role), "ok", asset.ByteSize)
	s.emitAudit(ctx, session, audit.ActionAssetStaged, audit.CategoryOperations, string(role), 0)
	return saved, nil
}

// RequestVerify runs one automated verification attempt. Only valid from
// AssetsStaged with attempts remaining; Verifying is exclusive so duplicate
// intents are rejected rather than racing attempt numbers. The remote call
// runs outside the session lock; a response arriving after the session moved
// on (ended, superseded token) is discarded.
func (s *Service) RequestVerify(ctx context.Context, sessionID id.SessionID) (*models.VerificationSession, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if err := s.checkVerifyAllowed(session); err != nil {
		mu.Unlock()
		return nil, err
	}

	session.RequestToken++
	token := session.RequestToken
	session.State = models.StateVerifying
	snapshot, err := s.save(ctx, session)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	mu.Unlock()

	s.emitAudit(ctx, snapshot, audit.ActionVerifyRequested, audit.CategoryOperations, "", snapshot.NextAttemptNumber())

	started := time.Now()
	attempt := s.orchestrator.Verify(ctx, snapshot)

	mu.Lock()
	defer mu.Unlock()

	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if current.State == models.StateEnded || current.RequestToken != token {
		// The session moved on while the call was in flight. The response is
		// provably stale: drop it without touching attempts.
		s.metrics.ObserveStaleResponse()
		s.emitAudit(ctx, current, audit.ActionStaleResponseDrop, audit.CategoryOperations, string(attempt.Outcome), attempt.AttemptNumber)
		return current, nil
	}

	current.Attempts = append(current.Attempts, attempt)
	s.applyOutcome(current, attempt)

	saved, err := s.save(ctx, current)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveVerify(string(attempt.Outcome), started)
	s.emitAudit(ctx, saved, audit.ActionVerifyCompleted, audit.CategoryCompliance, string(attempt.Outcome), attempt.AttemptNumber)
	if saved.State == models.StateAwaitingOverride {
		s.emitAudit(ctx, saved, audit.ActionAttemptsExhausted, audit.CategoryCompliance, string(attempt.Outcome), attempt.AttemptNumber)
	}
	return saved, nil
}

func (s *Service) checkVerifyAllowed(session *models.VerificationSession) error {
	switch session.State {
	case models.StateVerifying:
		return dErrors.New(dErrors.CodeConflict, "a verification is already in progress")
	case models.StateVerified, models.StateOverrideAccepted:
		return dErrors.New(dErrors.CodeConflict, "identity has already been established")
	case models.StateEnded:
		return dErrors.New(dErrors.CodeConflict, "the session has ended")
	case models.StateAwaitingOverride:
		return dErrors.New(dErrors.CodeConflict, "automated attempts are exhausted; submit a manual override")
	case models.StateEmpty:
		return dErrors.New(dErrors.CodeConflict, "both a reference photo and an identity document must be staged first")
	}
	if !session.BothAssetsStaged() {
		return dErrors.New(dErrors.CodeConflict, "both a reference photo and an identity document must be staged first")
	}
	if session.AttemptsExhausted(s.maxAttempts) {
		return dErrors.New(dErrors.CodeConflict, "automated attempts are exhausted; submit a manual override")
	}
	return nil
}

// applyOutcome is the single transition function for attempt results.
func (s *Service) applyOutcome(session *models.VerificationSession, attempt models.VerificationAttempt) {
	if attempt.Outcome == models.OutcomeMatch {
		session.State = models.StateVerified
		session.Method = models.MethodAutomated
		if attempt.ExtractedIdentity != nil {
			session.PersonName = attempt.ExtractedIdentity.Name
		}
		return
	}
	// Any non-match outcome (including low confidence and remote errors)
	// consumes the attempt slot.
	if session.AttemptsExhausted(s.maxAttempts) {
		session.State = models.StateAwaitingOverride
		return
	}
	session.State = models.StateAssetsStaged
}

// Retry acknowledges a failed attempt and returns the session to staging so
// the investigator can replace photos. Attempt history is untouched; only
// RequestVerify consumes attempts. Cleanup of the previous attempt's remote
// artifacts is fire-and-forget.
func (s *Service) Retry(ctx context.Context, sessionID id.SessionID) (*models.VerificationSession, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case session.State == models.StateVerifying:
		return nil, dErrors.New(dErrors.CodeConflict, "a verification is already in progress")
	case session.State == models.StateAwaitingOverride:
		return nil, dErrors.New(dErrors.CodeConflict, "automated attempts are exhausted; submit a manual override")
	case session.State != models.StateAssetsStaged || len(session.Attempts) == 0:
		return nil, dErrors.New(dErrors.CodeConflict, "there is no failed attempt to retry")
	}

	s.cleanupAsync(session, len(session.Attempts))
	s.emitAudit(ctx, session, audit.ActionRetryRequested, audit.CategoryOperations, "", len(session.Attempts))
	return s.save(ctx, session)
}

// SubmitOverride records an investigator-asserted identity after automation
// is exhausted. The session enters the exclusive Verifying state while the
// remote call (carrying an explicit override flag) is in flight, so duplicate
// override intents are rejected rather than issuing a second call. On remote
// failure the session returns to AwaitingOverride and no attempt is consumed.
func (s *Service) SubmitOverride(ctx context.Context, sessionID id.SessionID, identity models.Identity, reason string) (*models.VerificationSession, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if session.State == models.StateVerifying {
		mu.Unlock()
		return nil, dErrors.New(dErrors.CodeConflict, "a verification is already in progress")
	}
	if session.State != models.StateAwaitingOverride {
		mu.Unlock()
		return nil, dErrors.New(dErrors.CodeConflict, "a manual override is only available once automated attempts are exhausted")
	}
	if err := override.Validate(identity.Name, identity.NationalIDNumber, identity.Nationality); err != nil {
		s.metrics.ObserveOverride("invalid")
		s.emitOverrideRejected(ctx, session, dErrors.MessageOf(err))
		mu.Unlock()
		return nil, err
	}
	if err := override.ValidateReason(reason); err != nil {
		s.metrics.ObserveOverride("invalid")
		s.emitOverrideRejected(ctx, session, dErrors.MessageOf(err))
		mu.Unlock()
		return nil, err
	}

	session.RequestToken++
	token := session.RequestToken
	session.State = models.StateVerifying
	snapshot, err := s.save(ctx, session)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	mu.Unlock()

	s.emitAudit(ctx, snapshot, audit.ActionOverrideSubmitted, audit.CategoryCompliance, "", len(snapshot.Attempts))

	req := facematch.VerifyRequest{
		CaseID:         snapshot.CaseID,
		SessionID:      snapshot.SessionID,
		PersonRole:     snapshot.PersonRole,
		DocumentKind:   snapshot.DocumentKind,
		AttemptNumber:  len(snapshot.Attempts),
		ManualOverride: true,
		OverrideReason: reason,
		ManualIdentity: &facematch.ManualIdentity{
			Name:             identity.Name,
			NationalIDNumber: identity.NationalIDNumber,
			Nationality:      identity.Nationality,
		},
	}
	if snapshot.DocumentAsset != nil {
		req.DocumentKey = snapshot.DocumentAsset.StorageKey
	}
	if snapshot.ReferenceAsset != nil {
		req.ReferenceKey = snapshot.ReferenceAsset.StorageKey
	}

	_, verifyErr := s.verifier.Verify(ctx, req)

	mu.Lock()
	defer mu.Unlock()

	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if current.State == models.StateEnded || current.RequestToken != token {
		s.metrics.ObserveStaleResponse()
		return current, nil
	}

	if verifyErr != nil {
		// The session returns to AwaitingOverride; the error is surfaced and
		// no attempt counter moves.
		s.logger.ErrorContext(ctx, "override submission failed",
			"case_id", current.CaseID,
			"session_id", current.SessionID,
			"error", verifyErr,
		)
		current.State = models.StateAwaitingOverride
		if _, saveErr := s.save(ctx, current); saveErr != nil {
			return nil, saveErr
		}
		s.metrics.ObserveOverride("remote_error")
		s.emitOverrideRejected(ctx, current, verifyErr.Error())
		return nil, dErrors.Wrap(verifyErr, dErrors.CodeUnavailable, "the override could not be recorded, please try again")
	}

	current.Override = &models.ManualOverrideRecord{
		EnteredName:          identity.Name,
		EnteredNationalID:    identity.NationalIDNumber,
		EnteredNationality:   identity.Nationality,
		Reason:               reason,
		BasedOnAttemptNumber: len(current.Attempts),
		SubmittedBy:          requestcontext.InvestigatorID(ctx),
		CreatedAt:            requestcontext.Now(ctx),
	}
	current.State = models.StateOverrideAccepted
	current.PersonName = identity.Name
	current.Method = models.MethodOverride

	saved, err := s.save(ctx, current)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveOverride("accepted")
	s.emitAudit(ctx, saved, audit.ActionOverrideAccepted, audit.CategoryCompliance, "", saved.Override.BasedOnAttemptNumber)
	return saved, nil
}

// EndSession terminates the session from any state after explicit user
// confirmation. Staged assets, attempts, and override records are cleared;
// the terminal Ended record remains so a second call is idempotent. An
// in-flight verification response is suppressed via the bumped token.
func (s *Service) EndSession(ctx context.Context, sessionID id.SessionID) (*models.VerificationSession, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == models.StateEnded {
		return session, nil
	}

	if len(session.Attempts) > 0 || session.BothAssetsStaged() {
		s.cleanupAsync(session, len(session.Attempts))
	}

	session.ReferenceAsset = nil
	session.DocumentAsset = nil
	session.Attempts = nil
	session.Override = nil
	session.PersonName = ""
	session.Method = ""
	session.State = models.StateEnded
	session.RequestToken++

	saved, err := s.save(ctx, session)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSessionEnded()
	s.emitAudit(ctx, saved, audit.ActionSessionEnded, audit.CategoryCompliance, "", 0)
	return saved, nil
}

// cleanupAsync fires the best-effort remote cleanup. Failures are logged and
// audited, never surfaced: cleanup must not block any transition.
func (s *Service) cleanupAsync(session *models.VerificationSession, attemptNumber int) {
	caseID, sessionID, role := session.CaseID, session.SessionID, session.PersonRole
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := s.verifier.Cleanup(ctx, caseID, sessionID, role, attemptNumber); err != nil {
			s.logger.Warn("previous attempt cleanup failed",
				"case_id", caseID,
				"session_id", sessionID,
				"attempt_number", attemptNumber,
				"error", err,
			)
			if s.auditor != nil {
				_ = s.auditor.Emit(ctx, audit.Event{
					Category:      audit.CategoryOperations,
					CaseID:        caseID,
					SessionID:     sessionID,
					Action:        string(audit.ActionCleanupFailed),
					AttemptNumber: attemptNumber,
					Reason:        err.Error(),
				})
			}
		}
	}()
}

func (s *Service) load(ctx context.Context, sessionID id.SessionID) (*models.VerificationSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return session, nil
}

func (s *Service) save(ctx context.Context, session *models.VerificationSession) (*models.VerificationSession, error) {
	session.UpdatedAt = requestcontext.Now(ctx)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}
	return session, nil
}

func (s *Service) emitAudit(ctx context.Context, session *models.VerificationSession, action audit.Action, category audit.EventCategory, outcome string, attemptNumber int) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		Category:       category,
		CaseID:         session.CaseID,
		SessionID:      session.SessionID,
		InvestigatorID: requestcontext.InvestigatorID(ctx),
		Action:         string(action),
		AttemptNumber:  attemptNumber,
		Outcome:        outcome,
		RequestID:      requestcontext.RequestID(ctx),
	})
}

// emitOverrideRejected records why an override did not go through, both for
// local validation failures and for remote ones.
func (s *Service) emitOverrideRejected(ctx context.Context, session *models.VerificationSession, reason string) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		Category:       audit.CategoryCompliance,
		CaseID:         session.CaseID,
		SessionID:      session.SessionID,
		InvestigatorID: requestcontext.InvestigatorID(ctx),
		Action:         string(audit.ActionOverrideRejected),
		AttemptNumber:  len(session.Attempts),
		Reason:         reason,
		RequestID:      requestcontext.RequestID(ctx),
	})
}
