// Package principal carries the calling identity through a request's
// context.Context, generalized from the schema registry's typed
// context-key pattern for multi-tenant context propagation.
package principal

import "context"

type contextKey struct{}

// Anonymous is the principal name used when none was attached to the
// context; callers outside an authenticated surface (local CLI, tests)
// get audit records attributed to this name rather than an empty string.
const Anonymous = "anonymous"

// WithPrincipal returns a new context carrying name as the calling
// principal.
func WithPrincipal(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, contextKey{}, name)
}

// FromContext returns the principal attached to ctx, or Anonymous if none
// was attached.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey{}).(string); ok && v != "" {
		return v
	}
	return Anonymous
}
