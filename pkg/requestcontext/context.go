// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them without
// importing net/http.
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	investigatorIDKey struct{}
	requestIDKey      struct{}
	requestTimeKey    struct{}
)

var (
	ContextKeyInvestigatorID = investigatorIDKey{}
	ContextKeyRequestID      = requestIDKey{}
	ContextKeyRequestTime    = requestTimeKey{}
)

// InvestigatorID retrieves the authenticated investigator ID from the context.
func InvestigatorID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyInvestigatorID).(string); ok {
		return v
	}
	return ""
}

// WithInvestigatorID injects an investigator ID into the context.
func WithInvestigatorID(ctx context.Context, investigatorID string) context.Context {
	return context.WithValue(ctx, ContextKeyInvestigatorID, investigatorID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests that don't run the full HTTP middleware chain.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
