package facematch

import (
	"errors"
	"fmt"
)

// ErrorCategory normalizes remote verifier failures into a small taxonomy so
// the orchestrator can record a consumed attempt with a meaningful reason.
type ErrorCategory string

const (
	// ErrorTimeout indicates the verifier took too long to respond.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the verifier returned invalid/malformed data.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorOutage indicates the verifier is unavailable.
	ErrorOutage ErrorCategory = "outage"

	// ErrorRejected indicates the verifier refused the request (bad keys,
	// expired assets, unsupported document kind).
	ErrorRejected ErrorCategory = "rejected"

	// ErrorInternal indicates an unexpected internal error.
	ErrorInternal ErrorCategory = "internal"
)

// RemoteError wraps verifier failures with normalized categorization.
type RemoteError struct {
	Category   ErrorCategory
	Message    string
	Underlying error
}

func (e *RemoteError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("facematch [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("facematch [%s]: %s", e.Category, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Underlying }

// NewRemoteError creates a normalized remote error.
func NewRemoteError(category ErrorCategory, message string, underlying error) *RemoteError {
	return &RemoteError{Category: category, Message: message, Underlying: underlying}
}

// CategoryOf extracts the error category from an error chain.
func CategoryOf(err error) ErrorCategory {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Category
	}
	return ErrorInternal
}

// UserMessage returns the human-readable reason to surface for a failed
// verification call.
func UserMessage(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		switch re.Category {
		case ErrorTimeout:
			return "The verification service took too long to respond. Please try again."
		case ErrorOutage:
			return "The verification service is currently unavailable. Please try again shortly."
		case ErrorRejected:
			return "The verification service could not process the uploaded files."
		}
	}
	return "Verification failed due to a technical problem."
}
