package domain

import (
	"strings"

	dErrors "verigate/pkg/domain-errors"
)

// PersonRole is the role of the interviewed person within the case.
// Invariant: the value must be one of the supported roles.
//
// Usage: construct via ParsePersonRole at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type PersonRole string

const (
	RoleWitness PersonRole = "witness"
	RoleAccused PersonRole = "accused"
	RoleVictim  PersonRole = "victim"
)

// ParsePersonRole validates and returns a PersonRole.
func ParsePersonRole(s string) (PersonRole, error) {
	r := PersonRole(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "person_role must be one of: witness, accused, victim")
	}
	return r, nil
}

// IsValid checks if the role is one of the supported enum values.
func (r PersonRole) IsValid() bool {
	switch r {
	case RoleWitness, RoleAccused, RoleVictim:
		return true
	}
	return false
}

func (r PersonRole) String() string { return string(r) }

// DocumentKind is the kind of identity document presented for verification.
type DocumentKind string

const (
	DocumentNationalID DocumentKind = "national_id"
	DocumentPassport   DocumentKind = "passport"
)

// ParseDocumentKind validates and returns a DocumentKind.
func ParseDocumentKind(s string) (DocumentKind, error) {
	k := DocumentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "document_kind must be one of: national_id, passport")
	}
	return k, nil
}

// IsValid checks if the document kind is one of the supported enum values.
func (k DocumentKind) IsValid() bool {
	return k == DocumentNationalID || k == DocumentPassport
}

func (k DocumentKind) String() string { return string(k) }

// NationalID is a national identity number. Invariant: exactly 9 digits.
type NationalID string

// ParseNationalID validates and returns a NationalID.
func ParseNationalID(s string) (NationalID, error) {
	s = strings.TrimSpace(s)
	if len(s) != 9 {
		return "", dErrors.New(dErrors.CodeValidation, "national_id must be exactly 9 digits")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return "", dErrors.New(dErrors.CodeValidation, "national_id must be exactly 9 digits")
		}
	}
	return NationalID(s), nil
}

func (n NationalID) String() string { return string(n) }
