package admin

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sipico/consent-logger/internal/auth"
	"github.com/sipico/consent-logger/internal/metrics"
	"github.com/sipico/consent-logger/internal/middleware"
)

// logAllowlist lists the body fields kept by debug HTTP logging. Token
// values and digests are left out.
var logAllowlist = []string{
	"id", "name", "is_admin", "is_master_key", "capabilities", "created_at",
	"level", "category", "status", "total", "page", "per_page", "valid",
	"scan_enabled", "scan_time", "email_notifications", "auto_categorize", "banner_integration",
	"error", "message", "hint",
}

// NewRouter creates the admin router: health probes plus the token
// authenticated API under /api.
func (h *Handler) NewRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware)
	r.Use(chimw.Recoverer)

	// Public endpoints (no auth)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.HTTPLogging(h.logger, logAllowlist))
		r.Use(h.TokenAuthMiddleware)

		r.Get("/whoami", h.HandleWhoami)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAdmin)

			r.Post("/loglevel", h.HandleSetLogLevel)

			r.Get("/tokens", h.HandleListUnifiedTokens)
			r.Post("/tokens", h.HandleCreateUnifiedToken)
			r.Get("/tokens/{id}", h.HandleGetUnifiedToken)
			r.Delete("/tokens/{id}", h.HandleDeleteUnifiedToken)
		})

		if h.svc.Consents != nil {
			r.Group(func(r chi.Router) {
				r.Use(h.RequireCapability(auth.CapViewConsents))
				r.Get("/consents", h.HandleListConsents)
				r.Get("/consents/export", h.HandleExportConsents)
				r.Get("/consents/stats", h.HandleConsentStats)
				r.Get("/consents/{consentID}", h.HandleGetConsent)
			})
		}

		if h.svc.Proofs != nil {
			r.Group(func(r chi.Router) {
				r.Use(h.RequireCapability(auth.CapDownloadProof))
				r.Get("/consents/{consentID}/proof", h.HandleDownloadProof)
				r.Post("/consents/{consentID}/proof/verify", h.HandleVerifyProof)
			})
		}

		if h.svc.Cookies != nil {
			r.Group(func(r chi.Router) {
				r.Use(h.RequireCapability(auth.CapManageCookies))
				r.Get("/cookies", h.HandleListCookies)
				r.Patch("/cookies/{name}", h.HandleUpdateCookie)
				r.Delete("/cookies/{name}", h.HandleDeleteCookie)
			})
			r.With(h.RequireCapability(auth.CapRunScan)).Post("/scans", h.HandleStartScan)

			if h.svc.Settings != nil {
				r.Group(func(r chi.Router) {
					r.Use(h.RequireCapability(auth.CapManageSettings))
					r.Get("/settings", h.HandleGetSettings)
					r.Put("/settings", h.HandleUpdateSettings)
				})
			}
		}

		if h.svc.Activity != nil {
			r.With(h.RequireCapability(auth.CapViewActivity)).Get("/activity", h.HandleListActivity)
		}

		if h.svc.Banner != nil {
			r.With(h.RequireCapability(auth.CapManageCookies)).Get("/banner/cookies", h.HandleBannerCookies)
		}
	})

	return r
}
