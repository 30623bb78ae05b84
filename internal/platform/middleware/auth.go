package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/requestcontext"
)

// TokenValidator validates an investigator bearer token and returns the
// investigator ID it asserts.
type TokenValidator interface {
	ValidateToken(tokenString string) (investigatorID string, err error)
}

// RequireInvestigator enforces a valid bearer token on every verification
// endpoint and injects the investigator ID into the request context for
// audit attribution.
func RequireInvestigator(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "a bearer token is required"))
				return
			}

			investigatorID, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "token validation failed",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			ctx := requestcontext.WithInvestigatorID(r.Context(), investigatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
