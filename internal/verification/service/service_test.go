package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"verigate/internal/audit"
	"verigate/internal/facematch"
	"verigate/internal/objectstore"
	"verigate/internal/verification/models"
	"verigate/internal/verification/store"
	"verigate/internal/verification/uploader"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
)

type verifyResult struct {
	resp *facematch.VerifyResponse
	err  error
}

type cleanupCall struct {
	caseID        id.CaseID
	sessionID     id.SessionID
	attemptNumber int
}

// fakeVerifier replays a scripted sequence of responses. An empty script
// yields confident no-match responses. onVerify runs after the request is
// recorded, while the service holds no session lock, so tests can interleave
// competing intents with an in-flight call.
type fakeVerifier struct {
	mu       sync.Mutex
	script   []verifyResult
	requests []facematch.VerifyRequest
	onVerify func()
	cleanups chan cleanupCall
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{cleanups: make(chan cleanupCall, 16)}
}

func (f *fakeVerifier) enqueue(resp *facematch.VerifyResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, verifyResult{resp: resp, err: err})
}

func (f *fakeVerifier) Verify(_ context.Context, req facematch.VerifyRequest) (*facematch.VerifyResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var next verifyResult
	if len(f.script) > 0 {
		next = f.script[0]
		f.script = f.script[1:]
	} else {
		next = verifyResult{resp: &facematch.VerifyResponse{
			Match:      false,
			Similarity: 12,
			Confidence: facematch.ConfidenceHigh,
		}}
	}
	hook := f.onVerify
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return next.resp, next.err
}

func (f *fakeVerifier) Cleanup(_ context.Context, caseID id.CaseID, sessionID id.SessionID, _ id.PersonRole, attemptNumber int) error {
	f.cleanups <- cleanupCall{caseID: caseID, sessionID: sessionID, attemptNumber: attemptNumber}
	return nil
}

func (f *fakeVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeVerifier) lastRequest() facematch.VerifyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeObjectStore struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeObjectStore) GetUploadLocation(_ context.Context, _ id.CaseID, sessionID id.SessionID, _ objectstore.FileMeta, role string) (*objectstore.UploadLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &objectstore.UploadLocation{
		WriteLocation: "https://blobs.test/write/" + sessionID.String(),
		StorageKey:    fmt.Sprintf("blob-%s-%d", role, f.calls),
		Expiry:        time.Now().Add(time.Minute),
	}, nil
}

func (f *fakeObjectStore) PutFile(_ context.Context, _ string, content io.Reader, _ objectstore.FileMeta, progress objectstore.ProgressFunc) error {
	if _, err := io.Copy(io.Discard, content); err != nil {
		return err
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

type ServiceSuite struct {
	suite.Suite

	ctx      context.Context
	verifier *fakeVerifier
	audits   *audit.InMemoryStore
	svc      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.verifier = newFakeVerifier()

	up, err := uploader.New(&fakeObjectStore{})
	s.Require().NoError(err)

	s.audits = audit.NewInMemoryStore()
	svc, err := New(store.NewInMemory(), up, s.verifier,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(audit.NewPublisher([]audit.Sink{s.audits})),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) createSession() *models.VerificationSession {
	session, err := s.svc.CreateSession(s.ctx, "CASE-2031-0042", id.RoleWitness, id.DocumentNationalID)
	s.Require().NoError(err)
	s.Require().Equal(models.StateEmpty, session.State)
	return session
}

func (s *ServiceSuite) stageBoth(sessionID id.SessionID) *models.VerificationSession {
	_, err := s.svc.StageAsset(s.ctx, sessionID, models.AssetReference, uploader.File{
		Name:     "reference.jpg",
		Size:     2048,
		MimeType: "image/jpeg",
		Content:  strings.NewReader("reference-bytes"),
	}, nil)
	s.Require().NoError(err)

	session, err := s.svc.StageAsset(s.ctx, sessionID, models.AssetDocument, uploader.File{
		Name:     "national-id.png",
		Size:     4096,
		MimeType: "image/png",
		Content:  strings.NewReader("document-bytes"),
	}, nil)
	s.Require().NoError(err)
	s.Require().Equal(models.StateAssetsStaged, session.State)
	return session
}

func (s *ServiceSuite) exhaustAttempts(sessionID id.SessionID) *models.VerificationSession {
	var session *models.VerificationSession
	var err error
	for i := 0; i < models.DefaultMaxAttempts; i++ {
		session, err = s.svc.RequestVerify(s.ctx, sessionID)
		s.Require().NoError(err)
	}
	s.Require().Equal(models.StateAwaitingOverride, session.State)
	return session
}

func (s *ServiceSuite) TestCreateAndGetSession() {
	created := s.createSession()

	found, err := s.svc.GetSession(s.ctx, created.SessionID)
	s.Require().NoError(err)
	s.Equal(created.SessionID, found.SessionID)
	s.Equal(id.CaseID("CASE-2031-0042"), found.CaseID)
	s.Equal(models.StateEmpty, found.State)
	s.Equal(models.DefaultMaxAttempts, found.RemainingAttempts(s.svc.MaxAttempts()))
}

func (s *ServiceSuite) TestGetSessionNotFound() {
	_, err := s.svc.GetSession(s.ctx, id.NewSessionID())
	s.Require().Error(err)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestStagingBothAssetsReachesStaged() {
	session := s.createSession()

	after, err := s.svc.StageAsset(s.ctx, session.SessionID, models.AssetReference, uploader.File{
		Name:     "reference.jpg",
		Size:     2048,
		MimeType: "image/jpeg",
		Content:  strings.NewReader("reference-bytes"),
	}, nil)
	s.Require().NoError(err)
	s.Equal(models.StateEmpty, after.State)
	s.Require().NotNil(after.ReferenceAsset)
	s.NotEmpty(after.ReferenceAsset.StorageKey)

	after = s.stageBoth(session.SessionID)
	s.Require().NotNil(after.DocumentAsset)
	s.NotEqual(after.ReferenceAsset.StorageKey, after.DocumentAsset.StorageKey)
}

func (s *ServiceSuite) TestVerifyRequiresBothAssets() {
	session := s.createSession()

	_, err := s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	s.Zero(s.verifier.callCount())
}

func (s *ServiceSuite) TestMatchEstablishesIdentity() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	s.verifier.enqueue(&facematch.VerifyResponse{
		Match:      true,
		Similarity: 97,
		Confidence: facematch.ConfidenceHigh,
		ExtractedIdentity: &facematch.ExtractedIdentity{
			Name:             "Dana Cohen",
			NationalIDNumber: "204837261",
			Nationality:      "Israeli",
		},
	}, nil)

	after, err := s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(models.StateVerified, after.State)
	s.Equal("Dana Cohen", after.PersonName)
	s.Equal(models.MethodAutomated, after.Method)
	s.Require().Len(after.Attempts, 1)
	s.Equal(models.OutcomeMatch, after.Attempts[0].Outcome)
	s.Equal(1, after.Attempts[0].AttemptNumber)

	identity, ok := after.EstablishedIdentity()
	s.Require().True(ok)
	s.Equal(id.RoleWitness, identity.PersonRole)
	s.Equal(models.MethodAutomated, identity.Method)
}

func (s *ServiceSuite) TestNoMatchReturnsToStaged() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	after, err := s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(models.StateAssetsStaged, after.State)
	s.Require().Len(after.Attempts, 1)
	s.Equal(models.OutcomeNoMatch, after.Attempts[0].Outcome)
	s.Equal(2, after.RemainingAttempts(s.svc.MaxAttempts()))
	s.NotNil(after.ReferenceAsset)
	s.NotNil(after.DocumentAsset)
}

func (s *ServiceSuite) TestLowConfidenceNoMatchGetsRetakeGuidance() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	s.verifier.enqueue(&facematch.VerifyResponse{
		Match:      false,
		Similarity: 58,
		Confidence: facematch.ConfidenceMedium,
	}, nil)

	after, err := s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Require().Len(after.Attempts, 1)
	s.Equal(models.OutcomeLowConfidenceNoMatch, after.Attempts[0].Outcome)
	s.Contains(after.Attempts[0].Message, "Retake")
	s.Equal(2, after.RemainingAttempts(s.svc.MaxAttempts()))
}

func (s *ServiceSuite) TestRemoteErrorConsumesAttempt() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	s.verifier.enqueue(nil, &facematch.RemoteError{
		Category: facematch.ErrorTimeout,
		Message:  "deadline exceeded",
	})

	after, err := s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(models.StateAssetsStaged, after.State)
	s.Require().Len(after.Attempts, 1)
	s.Equal(models.OutcomeError, after.Attempts[0].Outcome)
	s.NotEmpty(after.Attempts[0].Message)
	s.Equal(2, after.RemainingAttempts(s.svc.MaxAttempts()))
}

func (s *ServiceSuite) TestThirdFailureExhaustsAttempts() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	after := s.exhaustAttempts(session.SessionID)
	s.Len(after.Attempts, 3)
	s.Zero(after.RemainingAttempts(s.svc.MaxAttempts()))

	_, err := s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	s.Contains(err.Error(), "exhausted")
	// The rejected fourth intent never reaches the remote verifier.
	s.Equal(3, s.verifier.callCount())
}

func (s *ServiceSuite) TestRetryKeepsAttemptHistory() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	_, err := s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().NoError(err)

	after, err := s.svc.Retry(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(models.StateAssetsStaged, after.State)
	s.Len(after.Attempts, 1)
	s.NotNil(after.ReferenceAsset)
	s.NotNil(after.DocumentAsset)

	select {
	case call := <-s.verifier.cleanups:
		s.Equal(session.SessionID, call.sessionID)
		s.Equal(1, call.attemptNumber)
	case <-time.After(2 * time.Second):
		s.Fail("expected a cleanup call after retry")
	}
}

func (s *ServiceSuite) TestRetryWithoutFailedAttemptRejected() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	_, err := s.svc.Retry(s.ctx, session.SessionID)
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestOverrideRequiresExhaustedAttempts() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	_, err := s.svc.SubmitOverride(s.ctx, session.SessionID, models.Identity{
		Name:             "Jane Doe",
		NationalIDNumber: "123456789",
		Nationality:      "British",
	}, "document damaged")
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestOverrideAccepted() {
	session := s.createSession()
	s.stageBoth(session.SessionID)
	s.exhaustAttempts(session.SessionID)

	after, err := s.svc.SubmitOverride(s.ctx, session.SessionID, models.Identity{
		Name:             "Jane Doe",
		NationalIDNumber: "123456789",
		Nationality:      "British",
	}, "document glare made automated comparison impossible")
	s.Require().NoError(err)
	s.Equal(models.StateOverrideAccepted, after.State)
	s.Equal("Jane Doe", after.PersonName)
	s.Equal(models.MethodOverride, after.Method)
	s.Require().NotNil(after.Override)
	s.Equal(3, after.Override.BasedOnAttemptNumber)
	s.Equal("Jane Doe", after.Override.EnteredName)

	req := s.verifier.lastRequest()
	s.True(req.ManualOverride)
	s.Equal("document glare made automated comparison impossible", req.OverrideReason)
	s.Require().NotNil(req.ManualIdentity)
	s.Equal("123456789", req.ManualIdentity.NationalIDNumber)
}

func (s *ServiceSuite) TestOverrideInvalidIdentityRejectedLocally() {
	session := s.createSession()
	s.stageBoth(session.SessionID)
	s.exhaustAttempts(session.SessionID)
	calls := s.verifier.callCount()

	_, err := s.svc.SubmitOverride(s.ctx, session.SessionID, models.Identity{
		Name:             "Jo",
		NationalIDNumber: "123456789",
		Nationality:      "UK",
	}, "reason")
	s.Require().Error(err)
	s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	s.Contains(err.Error(), "first and last name")
	// Local validation failures never reach the remote verifier.
	s.Equal(calls, s.verifier.callCount())

	current, err := s.svc.GetSession(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(models.StateAwaitingOverride, current.State)
}

func (s *ServiceSuite) TestOverrideMissingReasonRejected() {
	session := s.createSession()
	s.stageBoth(session.SessionID)
	s.exhaustAttempts(session.SessionID)

	_, err := s.svc.SubmitOverride(s.ctx, session.SessionID, models.Identity{
		Name:             "Jane Doe",
		NationalIDNumber: "123456789",
		Nationality:      "British",
	}, "   ")
	s.Require().Error(err)
	s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestOverrideRemoteFailureStaysAwaiting() {
	session := s.createSession()
	s.stageBoth(session.SessionID)
	s.exhaustAttempts(session.SessionID)

	s.verifier.enqueue(nil, &facematch.RemoteError{
		Category: facematch.ErrorOutage,
		Message:  "backend unavailable",
	})

	_, err := s.svc.SubmitOverride(s.ctx, session.SessionID, models.Identity{
		Name:             "Jane Doe",
		NationalIDNumber: "123456789",
		Nationality:      "British",
	}, "document damaged")
	s.Require().Error(err)
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))

	current, err := s.svc.GetSession(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(models.StateAwaitingOverride, current.State)
	s.Nil(current.Override)
	s.Len(current.Attempts, 3)
}

func (s *ServiceSuite) TestDuplicateOverrideRejectedWhileInFlight() {
	session := s.createSession()
	s.stageBoth(session.SessionID)
	s.exhaustAttempts(session.SessionID)

	identity := models.Identity{
		Name:             "Jane Doe",
		NationalIDNumber: "123456789",
		Nationality:      "British",
	}

	// Submit a second override while the first one's remote call is in
	// flight. The lock is not held during the call, so the hook runs the
	// competing intent on the same goroutine.
	var concurrent error
	s.verifier.onVerify = func() {
		_, concurrent = s.svc.SubmitOverride(s.ctx, session.SessionID, identity, "second intent")
	}
	s.verifier.enqueue(&facematch.VerifyResponse{Confidence: facematch.ConfidenceHigh}, nil)

	after, err := s.svc.SubmitOverride(s.ctx, session.SessionID, identity, "document damaged beyond recognition")
	s.Require().NoError(err)
	s.Equal(models.StateOverrideAccepted, after.State)

	s.Require().Error(concurrent)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(concurrent))
	s.Contains(concurrent.Error(), "already in progress")
	// Three exhaustion calls plus the single accepted override.
	s.Equal(4, s.verifier.callCount())
}

func (s *ServiceSuite) TestRejectedOverrideIsAudited() {
	session := s.createSession()
	s.stageBoth(session.SessionID)
	s.exhaustAttempts(session.SessionID)

	_, err := s.svc.SubmitOverride(s.ctx, session.SessionID, models.Identity{
		Name:             "Jane4 Doe",
		NationalIDNumber: "123456789",
		Nationality:      "British",
	}, "document damaged")
	s.Require().Error(err)

	events, err := s.audits.ListBySession(s.ctx, session.SessionID)
	s.Require().NoError(err)

	var rejected []audit.Event
	for _, event := range events {
		if event.Action == string(audit.ActionOverrideRejected) {
			rejected = append(rejected, event)
		}
	}
	s.Require().Len(rejected, 1)
	s.Equal(string(audit.CategoryCompliance), string(rejected[0].Category))
	s.Contains(rejected[0].Reason, "digits")
	s.Equal(3, rejected[0].AttemptNumber)
}

func (s *ServiceSuite) TestEndSessionClearsStateAndIsIdempotent() {
	session := s.createSession()
	s.stageBoth(session.SessionID)
	_, err := s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().NoError(err)

	ended, err := s.svc.EndSession(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(models.StateEnded, ended.State)
	s.Nil(ended.ReferenceAsset)
	s.Nil(ended.DocumentAsset)
	s.Empty(ended.Attempts)
	s.Nil(ended.Override)
	s.Empty(ended.PersonName)

	again, err := s.svc.EndSession(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(models.StateEnded, again.State)
	s.Equal(ended.RequestToken, again.RequestToken)
}

func (s *ServiceSuite) TestVerifyAfterEndRejected() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	_, err := s.svc.EndSession(s.ctx, session.SessionID)
	s.Require().NoError(err)

	_, err = s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestStaleVerifyResponseDroppedAfterEnd() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	// End the session while the verify call is in flight. The lock is not
	// held during the remote call, so the hook runs the competing intent on
	// the same goroutine.
	s.verifier.onVerify = func() {
		_, err := s.svc.EndSession(s.ctx, session.SessionID)
		s.Require().NoError(err)
	}
	s.verifier.enqueue(&facematch.VerifyResponse{
		Match:      true,
		Similarity: 99,
		Confidence: facematch.ConfidenceHigh,
		ExtractedIdentity: &facematch.ExtractedIdentity{
			Name: "Dana Cohen",
		},
	}, nil)

	after, err := s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(models.StateEnded, after.State)
	// The match that arrived after the end is discarded entirely.
	s.Empty(after.Attempts)
	s.Empty(after.PersonName)
}

func (s *ServiceSuite) TestDuplicateVerifyRejectedWhileInFlight() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	var concurrent error
	s.verifier.onVerify = func() {
		_, concurrent = s.svc.RequestVerify(s.ctx, session.SessionID)
	}

	_, err := s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Require().Error(concurrent)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(concurrent))
	s.Contains(concurrent.Error(), "already in progress")
	s.Equal(1, s.verifier.callCount())
}

func (s *ServiceSuite) TestPersonRoleFrozenAfterFirstAttempt() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	after, err := s.svc.SetPersonRole(s.ctx, session.SessionID, id.RoleVictim)
	s.Require().NoError(err)
	s.Equal(id.RoleVictim, after.PersonRole)

	_, err = s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().NoError(err)

	_, err = s.svc.SetPersonRole(s.ctx, session.SessionID, id.RoleAccused)
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestSwitchingDocumentKindDiscardsStagedDocument() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	after, err := s.svc.SetDocumentKind(s.ctx, session.SessionID, id.DocumentPassport)
	s.Require().NoError(err)
	s.Equal(id.DocumentPassport, after.DocumentKind)
	s.Nil(after.DocumentAsset)
	s.NotNil(after.ReferenceAsset)
	s.Equal(models.StateEmpty, after.State)

	// Re-selecting the same kind is a no-op.
	again, err := s.svc.SetDocumentKind(s.ctx, session.SessionID, id.DocumentPassport)
	s.Require().NoError(err)
	s.Equal(id.DocumentPassport, again.DocumentKind)
}

func (s *ServiceSuite) TestVerifyErrorRetryVerifySequence() {
	session := s.createSession()
	s.stageBoth(session.SessionID)

	s.verifier.enqueue(nil, errors.New("connection reset"))
	after, err := s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(models.OutcomeError, after.Attempts[0].Outcome)

	_, err = s.svc.Retry(s.ctx, session.SessionID)
	s.Require().NoError(err)

	s.verifier.enqueue(&facematch.VerifyResponse{
		Match:      true,
		Similarity: 91,
		Confidence: facematch.ConfidenceHigh,
		ExtractedIdentity: &facematch.ExtractedIdentity{
			Name: "Avi Mizrahi",
		},
	}, nil)
	after, err = s.svc.RequestVerify(s.ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(models.StateVerified, after.State)
	s.Len(after.Attempts, 2)
	s.Equal(2, after.Attempts[1].AttemptNumber)
}
