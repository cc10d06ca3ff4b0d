package auth

import "context"

type ctxKey int

const identityKey ctxKey = iota

// WithIdentity stores the authenticated identity in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored by WithIdentity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// IsAdminFromContext reports whether the request has admin privileges.
func IsAdminFromContext(ctx context.Context) bool {
	id := IdentityFromContext(ctx)
	return id != nil && id.IsAdmin
}
