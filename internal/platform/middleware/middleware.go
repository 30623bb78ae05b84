// Package middleware holds the HTTP middleware chain: request metadata
// injection and investigator authentication.
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"verigate/pkg/requestcontext"
)

// RequestMetadata assigns a request ID (honoring an inbound X-Request-ID)
// and pins the request time so all downstream reads within one request agree.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
