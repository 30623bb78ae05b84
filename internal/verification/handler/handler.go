// Package handler wires the verification workflow endpoints to the session
// service. Handlers decode intents, call the service, and render snapshots;
// no workflow state lives here.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verigate/internal/objectstore"
	"verigate/internal/verification/models"
	"verigate/internal/verification/uploader"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/requestcontext"
)

// Service defines the session controller operations the handler needs.
type Service interface {
	CreateSession(ctx context.Context, caseID id.CaseID, role id.PersonRole, kind id.DocumentKind) (*models.VerificationSession, error)
	GetSession(ctx context.Context, sessionID id.SessionID) (*models.VerificationSession, error)
	SetPersonRole(ctx context.Context, sessionID id.SessionID, role id.PersonRole) (*models.VerificationSession, error)
	SetDocumentKind(ctx context.Context, sessionID id.SessionID, kind id.DocumentKind) (*models.VerificationSession, error)
	StageAsset(ctx context.Context, sessionID id.SessionID, role models.AssetRole, file uploader.File, progress objectstore.ProgressFunc) (*models.VerificationSession, error)
	RequestVerify(ctx context.Context, sessionID id.SessionID) (*models.VerificationSession, error)
	Retry(ctx context.Context, sessionID id.SessionID) (*models.VerificationSession, error)
	SubmitOverride(ctx context.Context, sessionID id.SessionID, identity models.Identity, reason string) (*models.VerificationSession, error)
	EndSession(ctx context.Context, sessionID id.SessionID) (*models.VerificationSession, error)
	MaxAttempts() int
}

// Handler wires verification endpoints to the session service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the verification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Patch("/", h.HandleUpdate)
			r.Post("/assets", h.HandleStageAsset)
			r.Post("/verify", h.HandleVerify)
			r.Post("/retry", h.HandleRetry)
			r.Post("/override", h.HandleOverride)
			r.Delete("/", h.HandleEnd)
		})
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.CreateSession(ctx, req.ParsedCaseID(), req.ParsedRole(), req.ParsedKind())
	if err != nil {
		h.writeServiceError(ctx, w, "create session", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "verification session created",
		"request_id", requestID,
		"case_id", session.CaseID,
		"session_id", session.SessionID,
		"person_role", session.PersonRole,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromSession(session, h.service.MaxAttempts()))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.GetSession(ctx, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session, h.service.MaxAttempts()))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var (
		session *models.VerificationSession
		err     error
	)
	if role := req.ParsedRole(); role != nil {
		session, err = h.service.SetPersonRole(ctx, sessionID, *role)
		if err != nil {
			h.writeServiceError(ctx, w, "set person role", requestID, err)
			return
		}
	}
	if kind := req.ParsedKind(); kind != nil {
		session, err = h.service.SetDocumentKind(ctx, sessionID, *kind)
		if err != nil {
			h.writeServiceError(ctx, w, "set document kind", requestID, err)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session, h.service.MaxAttempts()))
}

// maxUploadBytes bounds the multipart body: asset ceiling plus form overhead.
const maxUploadBytes = uploader.MaxAssetBytes + 64<<10

func (h *Handler) HandleStageAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "upload must be a multipart form within the 10 MiB limit"))
		return
	}

	role, ok := models.ParseAssetRole(r.FormValue("role"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "role must be 'reference' or 'document'"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "a file part named 'file' is required"))
		return
	}
	defer file.Close()

	progress := func(percent int) {
		h.logger.DebugContext(ctx, "upload progress",
			"request_id", requestID,
			"session_id", sessionID,
			"role", role,
			"percent", percent,
		)
	}

	session, err := h.service.StageAsset(ctx, sessionID, role, uploader.File{
		Name:     header.Filename,
		Size:     header.Size,
		MimeType: header.Header.Get("Content-Type"),
		Content:  file,
	}, progress)
	if err != nil {
		h.writeServiceError(ctx, w, "stage asset", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "asset staged",
		"request_id", requestID,
		"session_id", sessionID,
		"role", role,
		"file_name", header.Filename,
		"byte_size", header.Size,
	)
	httputil.WriteJSON(w, http.StatusOK, FromSession(session, h.service.MaxAttempts()))
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.service.RequestVerify(ctx, sessionID)
	if err != nil {
		h.writeServiceError(ctx, w, "request verify", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "verification completed",
		"request_id", requestID,
		"session_id", sessionID,
		"state", session.State,
		"attempts", len(session.Attempts),
	)
	httputil.WriteJSON(w, http.StatusOK, FromSession(session, h.service.MaxAttempts()))
}

func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.service.Retry(ctx, sessionID)
	if err != nil {
		h.writeServiceError(ctx, w, "retry", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session, h.service.MaxAttempts()))
}

func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[OverrideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.SubmitOverride(ctx, sessionID, models.Identity{
		Name:             req.Name,
		NationalIDNumber: req.NationalID,
		Nationality:      req.Nationality,
	}, req.Reason)
	if err != nil {
		h.writeServiceError(ctx, w, "submit override", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "manual override accepted",
		"request_id", requestID,
		"session_id", sessionID,
		"based_on_attempts", session.Override.BasedOnAttemptNumber,
	)
	httputil.WriteJSON(w, http.StatusOK, FromSession(session, h.service.MaxAttempts()))
}

func (h *Handler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	// Ending discards everything, so the UI confirms before calling.
	if r.URL.Query().Get("confirm") != "true" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "ending a session requires confirm=true"))
		return
	}

	session, err := h.service.EndSession(ctx, sessionID)
	if err != nil {
		h.writeServiceError(ctx, w, "end session", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "verification session ended",
		"request_id", requestID,
		"session_id", sessionID,
	)
	httputil.WriteJSON(w, http.StatusOK, FromSession(session, h.service.MaxAttempts()))
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (id.SessionID, bool) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.SessionID{}, false
	}
	return sessionID, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op, requestID string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal || dErrors.CodeOf(err) == dErrors.CodeUnavailable {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestID,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
