// Package reqctx propagates request/session identifiers through
// context.Context so that logging, metrics, and cancellation can be
// correlated across the HTTP boundary, replication sessions, and query
// execution.
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}
type principalKey struct{}

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id carried by ctx, or "" if absent.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// NewRequestID generates a new random request id.
func NewRequestID() string {
	return uuid.New().String()
}

// WithNewRequestID attaches a freshly generated request id to ctx.
func WithNewRequestID(ctx context.Context) context.Context {
	return WithRequestID(ctx, NewRequestID())
}

// Principal identifies the authenticated caller of a request, as issued
// by the Auth/Identity Gate.
type Principal struct {
	AppID   string
	TokenID string
}

// WithPrincipal attaches an authenticated principal to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal carried by ctx, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
