// Package ctxutil provides shared context key accessors for values the
// auth middleware populates and downstream handlers read.
package ctxutil

import "context"

type contextKey string

const keyTenant contextKey = "tenant"

// WithTenant returns a new context carrying the caller's tenant, as read
// from the x-tenant request header.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, keyTenant, tenant)
}

// TenantFromContext extracts the tenant set by WithTenant, or "" if none
// was set.
func TenantFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyTenant).(string); ok {
		return v
	}
	return ""
}
