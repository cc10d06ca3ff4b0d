// Package collector is the public consent ingress: the consent endpoint
// and the reference client script.
package collector

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/consent-logger/internal/consent"
	"github.com/sipico/consent-logger/internal/metrics"
	"github.com/sipico/consent-logger/internal/middleware"
	"github.com/sipico/consent-logger/internal/storage"
)

// MaxBodyBytes caps consent submissions.
const MaxBodyBytes = 64 << 10

// Error codes in failure responses.
const (
	ErrCodeInvalidPayload = "invalid_payload"
	ErrCodeStorageFailure = "storage_failure"
)

// logAllowlist lists the body fields kept by debug HTTP logging. Consent
// ids are omitted since they link records to visitors.
var logAllowlist = []string{
	"status", "logged", "error", "message",
	"necessary", "functional", "analytics", "performance", "advertisement",
}

//go:embed assets/consent-logger.js
var clientScript []byte

// Recorder records consent submissions.
type Recorder interface {
	Record(ctx context.Context, p consent.Payload, m consent.Meta) (*storage.ConsentRecord, error)
}

// Response is the body of every consent endpoint response.
type Response struct {
	Logged    bool   `json:"logged"`
	ConsentID string `json:"consentId,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Config configures the collector.
type Config struct {
	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
	// CountryHeader names a header carrying the visitor country, such as
	// CF-IPCountry. Empty disables country capture.
	CountryHeader string
}

// Handler serves the public endpoints.
type Handler struct {
	recorder Recorder
	cfg      Config
	logger   *slog.Logger
}

// New creates a Handler.
func New(recorder Recorder, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{recorder: recorder, cfg: cfg, logger: logger}
}

// Routes returns the public router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware)
	r.Use(middleware.ClientIP(h.cfg.TrustProxyHeaders))
	r.Use(middleware.HTTPLogging(h.logger, logAllowlist))

	r.With(middleware.MaxBodySize(MaxBodyBytes)).Post("/consent", h.HandleConsent)
	r.Get("/consent-logger.js", h.HandleScript)
	return r
}

// HandleConsent records one consent decision.
// POST /consent
func (h *Handler) HandleConsent(w http.ResponseWriter, r *http.Request) {
	var p consent.Payload
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&p); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.fail(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidPayload, "request body too large")
			return
		}
		h.fail(w, http.StatusBadRequest, ErrCodeInvalidPayload, "request body must be a JSON object")
		return
	}

	meta := consent.Meta{
		RemoteIP:  middleware.GetClientIP(r.Context()),
		UserAgent: r.UserAgent(),
		Host:      hostOnly(r.Host),
	}
	if h.cfg.CountryHeader != "" {
		meta.Country = r.Header.Get(h.cfg.CountryHeader)
	}

	rec, err := h.recorder.Record(r.Context(), p, meta)
	switch {
	case errors.Is(err, consent.ErrInvalidPayload):
		h.fail(w, http.StatusBadRequest, ErrCodeInvalidPayload, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to record consent", "request_id", middleware.GetRequestID(r.Context()), "error", err)
		h.fail(w, http.StatusInternalServerError, ErrCodeStorageFailure, "consent could not be stored")
		return
	}

	metrics.RecordConsent(rec.Status)
	writeJSON(w, http.StatusOK, Response{Logged: true, ConsentID: rec.ConsentID})
}

// HandleScript serves the reference client.
// GET /consent-logger.js
func (h *Handler) HandleScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Response write errors are unrecoverable
	w.Write(clientScript)
}

func (h *Handler) fail(w http.ResponseWriter, status int, code, message string) {
	metrics.RecordConsentFailure(code)
	writeJSON(w, status, Response{Logged: false, Error: code, Message: message})
}

// hostOnly drops the port from a Host header value.
func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // Response write errors are unrecoverable
	json.NewEncoder(w).Encode(v)
}
