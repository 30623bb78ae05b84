package handler

import (
	"strings"

	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
)

// CreateSessionRequest is the HTTP request body for POST /v1/sessions.
type CreateSessionRequest struct {
	CaseID       string `json:"case_id"`
	PersonRole   string `json:"person_role"`
	DocumentKind string `json:"document_kind"`

	// Parsed values (populated by Validate)
	parsedCaseID id.CaseID
	parsedRole   id.PersonRole
	parsedKind   id.DocumentKind
}

// Validate validates and parses the request. Implements the Validatable
// interface for httputil.DecodeAndPrepare.
func (r *CreateSessionRequest) Validate() error {
	caseID, err := id.ParseCaseID(r.CaseID)
	if err != nil {
		return err
	}
	r.parsedCaseID = caseID

	role, err := id.ParsePersonRole(r.PersonRole)
	if err != nil {
		return err
	}
	r.parsedRole = role

	// Document kind defaults to national ID; the UI can switch it later.
	if strings.TrimSpace(r.DocumentKind) == "" {
		r.parsedKind = id.DocumentNationalID
		return nil
	}
	kind, err := id.ParseDocumentKind(r.DocumentKind)
	if err != nil {
		return err
	}
	r.parsedKind = kind
	return nil
}

func (r *CreateSessionRequest) ParsedCaseID() id.CaseID     { return r.parsedCaseID }
func (r *CreateSessionRequest) ParsedRole() id.PersonRole   { return r.parsedRole }
func (r *CreateSessionRequest) ParsedKind() id.DocumentKind { return r.parsedKind }

// UpdateSessionRequest is the body for PATCH /v1/sessions/{sessionID}:
// changing the person role (until verification starts) or the document kind.
type UpdateSessionRequest struct {
	PersonRole   *string `json:"person_role,omitempty"`
	DocumentKind *string `json:"document_kind,omitempty"`

	parsedRole *id.PersonRole
	parsedKind *id.DocumentKind
}

func (r *UpdateSessionRequest) Validate() error {
	if r.PersonRole == nil && r.DocumentKind == nil {
		return dErrors.New(dErrors.CodeValidation, "nothing to update: provide person_role or document_kind")
	}
	if r.PersonRole != nil {
		role, err := id.ParsePersonRole(*r.PersonRole)
		if err != nil {
			return err
		}
		r.parsedRole = &role
	}
	if r.DocumentKind != nil {
		kind, err := id.ParseDocumentKind(*r.DocumentKind)
		if err != nil {
			return err
		}
		r.parsedKind = &kind
	}
	return nil
}

func (r *UpdateSessionRequest) ParsedRole() *id.PersonRole   { return r.parsedRole }
func (r *UpdateSessionRequest) ParsedKind() *id.DocumentKind { return r.parsedKind }

// OverrideRequest is the body for POST /v1/sessions/{sessionID}/override.
// Field-level rules (token counts, digit checks, 9-digit national ID) are
// owned by the service so the first-failing-rule ordering stays in one place;
// here we only cap sizes to fail fast on oversized bodies.
type OverrideRequest struct {
	Name        string `json:"name"`
	NationalID  string `json:"national_id"`
	Nationality string `json:"nationality"`
	Reason      string `json:"reason"`
}

const maxOverrideFieldLength = 200

func (r *OverrideRequest) Validate() error {
	for _, field := range []string{r.Name, r.NationalID, r.Nationality} {
		if len(field) > maxOverrideFieldLength {
			return dErrors.New(dErrors.CodeValidation, "override fields must be at most 200 characters")
		}
	}
	if len(r.Reason) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 2000 characters")
	}
	return nil
}
