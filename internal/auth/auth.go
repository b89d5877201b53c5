// Package auth decides whether the current call may act as a given identity.
package auth

import (
	"context"

	"talk/internal/observability"
)

// AuthorizeFunc reports whether the call carried by ctx is authorized to act as identity.
type AuthorizeFunc func(ctx context.Context, identity string) bool

// WithCaller returns a context carrying the authenticated caller identity.
func WithCaller(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, observability.CallerKey, identity)
}

// CallerFromContext returns the authenticated caller identity, if any.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(observability.CallerKey).(string)
	return caller, ok && caller != ""
}

// RequireCaller allows the call only when the authenticated caller is identity.
func RequireCaller(ctx context.Context, identity string) bool {
	caller, ok := CallerFromContext(ctx)
	return ok && caller == identity
}

// AllowAll authorizes every identity. Use it in tests and offline tools.
func AllowAll(context.Context, string) bool {
	return true
}
