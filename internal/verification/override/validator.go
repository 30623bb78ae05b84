// Package override validates investigator-entered identity fields used when
// automated verification is bypassed.
package override

import (
	"strings"
	"unicode"

	dErrors "verigate/pkg/domain-errors"
)

// Validate checks the manually entered identity fields. Rules are applied in
// order and the first failure wins, so the caller always gets one
// deterministic reason.
func Validate(name, nationalID, nationality string) error {
	name = strings.TrimSpace(name)
	if len(strings.Fields(name)) < 2 {
		return dErrors.New(dErrors.CodeValidation, "name must include first and last name")
	}
	if containsDigit(name) {
		return dErrors.New(dErrors.CodeValidation, "name must not contain digits")
	}
	if len(name) < 3 {
		return dErrors.New(dErrors.CodeValidation, "name must be at least 3 characters")
	}

	nationalID = strings.TrimSpace(nationalID)
	if !isNineDigits(nationalID) {
		return dErrors.New(dErrors.CodeValidation, "national ID must be exactly 9 digits")
	}

	if containsDigit(nationality) {
		return dErrors.New(dErrors.CodeValidation, "nationality must not contain digits")
	}
	if len(strings.TrimSpace(nationality)) < 3 {
		return dErrors.New(dErrors.CodeValidation, "nationality must be at least 3 characters")
	}

	return nil
}

// ValidateReason checks the mandatory justification text. Validated
// separately: the UI enables submission only once a reason is present.
func ValidateReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "a justification reason is required to bypass automated verification")
	}
	return nil
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isNineDigits(s string) bool {
	if len(s) != 9 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
