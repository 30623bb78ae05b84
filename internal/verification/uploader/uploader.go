// Package uploader validates and stages the two required verification inputs
// (reference photo, identity document) against the storage backend.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"verigate/internal/objectstore"
	"verigate/internal/verification/models"
	dErrors "verigate/pkg/domain-errors"
)

// MaxAssetBytes is the upload size ceiling: 10 MiB.
const MaxAssetBytes = 10 << 20

var (
	referenceTypes = map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
	}
	documentTypes = map[string]bool{
		"image/jpeg":      true,
		"image/png":       true,
		"application/pdf": true,
	}
)

// File is one candidate upload. Content is read at most once.
type File struct {
	Name     string
	Size     int64
	MimeType string
	Content  io.Reader
}

// Uploader stages files. Validation happens before any network call so a bad
// file never costs a round trip.
type Uploader struct {
	store    objectstore.Store
	logger   *slog.Logger
	maxBytes int64
}

type Option func(*Uploader)

func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) { u.logger = logger }
}

func WithMaxBytes(max int64) Option {
	return func(u *Uploader) { u.maxBytes = max }
}

func New(store objectstore.Store, opts ...Option) (*Uploader, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	u := &Uploader{
		store:    store,
		logger:   slog.Default(),
		maxBytes: MaxAssetBytes,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Stage validates the file for the given role, uploads it, and returns the
// staged asset. The session is not mutated; the caller attaches the returned
// asset only on success, so a failed stage leaves prior assets untouched.
func (u *Uploader) Stage(ctx context.Context, session *models.VerificationSession, role models.AssetRole, file File, progress objectstore.ProgressFunc) (*models.UploadedAsset, error) {
	if err := u.validate(session, role, file); err != nil {
		return nil, err
	}

	meta := objectstore.FileMeta{
		FileName: file.Name,
		ByteSize: file.Size,
		MimeType: file.MimeType,
	}

	loc, err := u.store.GetUploadLocation(ctx, session.CaseID, session.SessionID, meta, string(role))
	if err != nil {
		u.logger.ErrorContext(ctx, "upload location request failed",
			"case_id", session.CaseID,
			"session_id", session.SessionID,
			"role", role,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not prepare the upload, please try again")
	}

	if err := u.store.PutFile(ctx, loc.WriteLocation, file.Content, meta, progress); err != nil {
		u.logger.ErrorContext(ctx, "file upload failed",
			"case_id", session.CaseID,
			"session_id", session.SessionID,
			"role", role,
			"storage_key", loc.StorageKey,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "the upload did not complete, please try again")
	}

	return &models.UploadedAsset{
		FileName:   file.Name,
		ByteSize:   file.Size,
		MimeType:   file.MimeType,
		StorageKey: loc.StorageKey,
		StagedAt:   time.Now(),
	}, nil
}

// validate applies local checks: non-empty, size ceiling, type allow-list for
// the role, and cross-role duplication (the verifier must never compare a
// file to itself).
func (u *Uploader) validate(session *models.VerificationSession, role models.AssetRole, file File) error {
	if file.Size <= 0 {
		return dErrors.New(dErrors.CodeValidation, "file is empty")
	}
	if file.Size > u.maxBytes {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("file exceeds the %d MiB limit", u.maxBytes>>20))
	}

	switch role {
	case models.AssetReference:
		if !referenceTypes[file.MimeType] {
			return dErrors.New(dErrors.CodeValidation, "reference photo must be a JPEG or PNG image")
		}
	case models.AssetDocument:
		if !documentTypes[file.MimeType] {
			return dErrors.New(dErrors.CodeValidation, "identity document must be a JPEG, PNG, or PDF file")
		}
	default:
		return dErrors.New(dErrors.CodeBadRequest, "unknown asset role")
	}

	other := session.AssetForRole(otherRole(role))
	if other != nil && other.SameFile(file.Name, file.Size) {
		return dErrors.New(dErrors.CodeValidation, "the reference photo and identity document must be different files")
	}
	return nil
}

func otherRole(role models.AssetRole) models.AssetRole {
	if role == models.AssetReference {
		return models.AssetDocument
	}
	return models.AssetReference
}

// AllowedTypes reports the accepted MIME types for a role, for UI display.
func AllowedTypes(role models.AssetRole) []string {
	if role == models.AssetReference {
		return []string{"image/jpeg", "image/png"}
	}
	return []string{"image/jpeg", "image/png", "application/pdf"}
}
