package admin

import (
	"net/http"

	"github.com/sipico/consent-logger/internal/auth"
	"github.com/sipico/consent-logger/internal/metrics"
)

// RequireAdmin is middleware that requires admin privileges.
// It must be used after TokenAuthMiddleware.
// Returns 403 Forbidden if the request is not from an admin token.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdminFromContext(r.Context()) {
			metrics.RecordAuthFailure("admin_required")
			WriteErrorWithHint(w, http.StatusForbidden, ErrCodeAdminRequired,
				"This endpoint requires an admin token",
				"Use an admin token (is_admin: true) to access admin-only endpoints")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCapability returns middleware that rejects tokens without c.
// Admin tokens pass. It must be used after TokenAuthMiddleware.
func (h *Handler) RequireCapability(c auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.IdentityFromContext(r.Context()).Has(c) {
				metrics.RecordAuthFailure("forbidden")
				WriteErrorWithHint(w, http.StatusForbidden, ErrCodeForbidden,
					"Token lacks the "+string(c)+" capability",
					"Ask an administrator for a token with this capability")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
