package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"verigate/internal/verification/models"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/sentinel"
)

// PostgresSessionStore persists verification sessions in PostgreSQL. Core
// coordinates are columns for querying; attempts and override records travel
// as JSONB since they are read and written as a unit with the session.
type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

// Schema is the DDL for the sessions table, applied by deployment tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS verification_sessions (
	session_id      UUID PRIMARY KEY,
	case_id         TEXT NOT NULL,
	person_role     TEXT NOT NULL,
	document_kind   TEXT NOT NULL,
	state           TEXT NOT NULL,
	person_name     TEXT NOT NULL DEFAULT '',
	method          TEXT NOT NULL DEFAULT '',
	request_token   BIGINT NOT NULL DEFAULT 0,
	reference_asset JSONB,
	document_asset  JSONB,
	attempts        JSONB NOT NULL DEFAULT '[]',
	override_record JSONB,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS verification_sessions_case_idx ON verification_sessions (case_id);
`

func (s *PostgresSessionStore) Save(ctx context.Context, session *models.VerificationSession) error {
	referenceAsset, err := nullableJSON(session.ReferenceAsset)
	if err != nil {
		return fmt.Errorf("encode reference asset: %w", err)
	}
	documentAsset, err := nullableJSON(session.DocumentAsset)
	if err != nil {
		return fmt.Errorf("encode document asset: %w", err)
	}
	attempts, err := json.Marshal(session.Attempts)
	if err != nil {
		return fmt.Errorf("encode attempts: %w", err)
	}
	override, err := nullableJSON(session.Override)
	if err != nil {
		return fmt.Errorf("encode override: %w", err)
	}

	query := `
		INSERT INTO verification_sessions (
			session_id, case_id, person_role, document_kind, state, person_name,
			method, request_token, reference_asset, document_asset, attempts,
			override_record, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (session_id) DO UPDATE SET
			person_role = EXCLUDED.person_role,
			document_kind = EXCLUDED.document_kind,
			state = EXCLUDED.state,
			person_name = EXCLUDED.person_name,
			method = EXCLUDED.method,
			request_token = EXCLUDED.request_token,
			reference_asset = EXCLUDED.reference_asset,
			document_asset = EXCLUDED.document_asset,
			attempts = EXCLUDED.attempts,
			override_record = EXCLUDED.override_record,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		session.SessionID.String(),
		session.CaseID.String(),
		session.PersonRole.String(),
		session.DocumentKind.String(),
		string(session.State),
		session.PersonName,
		string(session.Method),
		int64(session.RequestToken),
		referenceAsset,
		documentAsset,
		attempts,
		override,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.VerificationSession, error) {
	query := `
		SELECT session_id, case_id, person_role, document_kind, state, person_name,
		       method, request_token, reference_asset, document_asset, attempts,
		       override_record, created_at, updated_at
		FROM verification_sessions
		WHERE session_id = $1
	`
	row := s.db.QueryRowContext(ctx, query, sessionID.String())

	var (
		session        models.VerificationSession
		rawSessionID   string
		rawCaseID      string
		rawRole        string
		rawKind        string
		rawState       string
		rawMethod      string
		requestToken   int64
		referenceAsset []byte
		documentAsset  []byte
		attempts       []byte
		override       []byte
	)
	err := row.Scan(
		&rawSessionID, &rawCaseID, &rawRole, &rawKind, &rawState,
		&session.PersonName, &rawMethod, &requestToken,
		&referenceAsset, &documentAsset, &attempts, &override,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	parsedID, err := id.ParseSessionID(rawSessionID)
	if err != nil {
		return nil, fmt.Errorf("decode session id: %w", err)
	}
	session.SessionID = parsedID
	session.CaseID = id.CaseID(rawCaseID)
	session.PersonRole = id.PersonRole(rawRole)
	session.DocumentKind = id.DocumentKind(rawKind)
	session.State = models.SessionState(rawState)
	session.Method = models.VerificationMethod(rawMethod)
	session.RequestToken = uint64(requestToken)

	if err := decodeJSON(referenceAsset, &session.ReferenceAsset); err != nil {
		return nil, fmt.Errorf("decode reference asset: %w", err)
	}
	if err := decodeJSON(documentAsset, &session.DocumentAsset); err != nil {
		return nil, fmt.Errorf("decode document asset: %w", err)
	}
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &session.Attempts); err != nil {
			return nil, fmt.Errorf("decode attempts: %w", err)
		}
	}
	if err := decodeJSON(override, &session.Override); err != nil {
		return nil, fmt.Errorf("decode override: %w", err)
	}

	return &session, nil
}

func nullableJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case *models.UploadedAsset:
		if t == nil {
			return nil, nil
		}
	case *models.ManualOverrideRecord:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func decodeJSON[T any](raw []byte, dst **T) error {
	if len(raw) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}
