package admin

import (
	"errors"
	"net/http"

	"github.com/sipico/consent-logger/internal/auth"
	"github.com/sipico/consent-logger/internal/metrics"
	"github.com/sipico/consent-logger/internal/middleware"
)

// TokenAuthMiddleware authenticates the AccessKey header (or a Bearer
// token) against stored tokens, or the master key during bootstrap.
func (h *Handler) TokenAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := h.authn.Authenticate(ctx, auth.KeyFromRequest(r))
		switch {
		case errors.Is(err, auth.ErrMissingKey):
			metrics.RecordAuthFailure("missing_key")
			WriteErrorWithHint(w, http.StatusUnauthorized, ErrCodeInvalidCredentials,
				"Missing API key", "Send the key in the AccessKey header")
			return
		case errors.Is(err, auth.ErrInvalidKey):
			metrics.RecordAuthFailure("invalid_key")
			h.logger.Warn("invalid admin token attempt", "request_id", middleware.GetRequestID(ctx))
			WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid API key")
			return
		case errors.Is(err, auth.ErrMasterKeyLocked):
			metrics.RecordAuthFailure("master_key_locked")
			WriteErrorWithHint(w, http.StatusForbidden, ErrCodeMasterKeyLocked,
				"Master API key is locked. Use an admin token instead.",
				"The master key only works until the first admin token is created")
			return
		case err != nil:
			h.internalError(w, "failed to authenticate admin request", err)
			return
		}

		if id.MasterKey {
			h.logger.Debug("admin API request via master key")
		} else {
			h.logger.Debug("admin API request via token", "token_name", id.Name, "is_admin", id.IsAdmin)
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(ctx, id)))
	})
}
