package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/consent-logger/internal/activity"
	"github.com/sipico/consent-logger/internal/auth"
	"github.com/sipico/consent-logger/internal/scanner"
	"github.com/sipico/consent-logger/internal/storage"
)

// HandleListCookies returns the tracked cookie registry.
// GET /api/cookies
func (h *Handler) HandleListCookies(w http.ResponseWriter, r *http.Request) {
	cookies, err := h.svc.Cookies.Cookies(r.Context())
	if err != nil {
		h.internalError(w, "failed to list tracked cookies", err)
		return
	}
	writeJSON(w, http.StatusOK, cookies)
}

// UpdateCookieRequest is the body of PATCH /api/cookies/{name}.
type UpdateCookieRequest struct {
	Category string `json:"category"`
}

// HandleUpdateCookie changes the category of a tracked cookie.
// PATCH /api/cookies/{name}
func (h *Handler) HandleUpdateCookie(w http.ResponseWriter, r *http.Request) {
	var req UpdateCookieRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON")
		return
	}

	cookie, err := h.svc.Cookies.Reclassify(r.Context(), chi.URLParam(r, "name"), req.Category)
	switch {
	case errors.Is(err, scanner.ErrInvalidCategory):
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(),
			"Use necessary, functional, analytics or advertisement")
		return
	case errors.Is(err, scanner.ErrCookieNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Cookie is not tracked")
		return
	case err != nil:
		h.internalError(w, "failed to reclassify cookie", err)
		return
	}
	writeJSON(w, http.StatusOK, cookie)
}

// HandleDeleteCookie removes a cookie from the registry.
// DELETE /api/cookies/{name}
func (h *Handler) HandleDeleteCookie(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Cookies.Forget(r.Context(), chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, scanner.ErrCookieNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Cookie is not tracked")
		return
	case err != nil:
		h.internalError(w, "failed to remove cookie", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStartScan starts a cookie scan in the background. A scan already
// in progress finishes first; progress shows up in the activity log.
// POST /api/scans
func (h *Handler) HandleStartScan(w http.ResponseWriter, r *http.Request) {
	requestedBy := "unknown"
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		requestedBy = id.Name
	}
	h.record(r.Context(), fmt.Sprintf("Manual cookie scan requested by %s", requestedBy))

	ctx := context.WithoutCancel(r.Context())
	h.runAsync(func() {
		res, err := h.svc.Cookies.Scan(ctx)
		if err != nil {
			h.logger.Error("manual cookie scan failed", "error", err)
			return
		}
		h.logger.Info("manual cookie scan finished", "new_cookies", len(res.NewCookies), "duration", res.Duration)
	})

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
	})
}

// HandleGetSettings returns the scanner settings.
// GET /api/settings
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Cookies.Settings(r.Context())
	if err != nil {
		h.internalError(w, "failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// HandleUpdateSettings saves scanner settings and applies them. Fields
// missing from the body keep their current value.
// PUT /api/settings
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	settings, err := h.svc.Cookies.Settings(ctx)
	if err != nil {
		h.internalError(w, "failed to load settings", err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON")
		return
	}
	if err := settings.Validate(); err != nil {
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), "scan_time uses 24-hour HH:MM")
		return
	}

	if err := h.svc.Settings.PutSettingJSON(ctx, storage.SettingScanner, settings); err != nil {
		h.internalError(w, "failed to save settings", err)
		return
	}
	if h.svc.Applier != nil {
		if err := h.svc.Applier.Apply(settings); err != nil {
			h.internalError(w, "failed to apply settings", err)
			return
		}
	}

	h.logger.Info("scanner settings updated", "scan_enabled", settings.Enabled, "scan_time", settings.Time)
	h.record(ctx, fmt.Sprintf("Scanner settings updated (daily scan %s at %s)", onOff(settings.Enabled), settings.Time))
	writeJSON(w, http.StatusOK, settings)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// HandleListActivity returns recent activity, newest first.
// GET /api/activity?limit=
func (h *Handler) HandleListActivity(w http.ResponseWriter, r *http.Request) {
	limit := activity.DefaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > activity.DefaultLimit {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
				fmt.Sprintf("limit must be between 1 and %d", activity.DefaultLimit))
			return
		}
		limit = n
	}

	entries, err := h.svc.Activity.Recent(r.Context(), limit)
	if err != nil {
		h.internalError(w, "failed to list activity", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleBannerCookies returns the consent banner cookie list.
// GET /api/banner/cookies
func (h *Handler) HandleBannerCookies(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Banner.Load(r.Context())
	if err != nil {
		h.internalError(w, "failed to load banner cookie list", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
