// Package admin provides the authenticated administration API: consent
// records and proofs, the tracked cookie registry, scans, settings, the
// activity log and API tokens.
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/sipico/consent-logger/internal/auth"
	"github.com/sipico/consent-logger/internal/banner"
	"github.com/sipico/consent-logger/internal/proof"
	"github.com/sipico/consent-logger/internal/scanner"
	"github.com/sipico/consent-logger/internal/storage"
)

// Storage is the token store behind authentication and token management.
type Storage interface {
	Ping(ctx context.Context) error

	CreateToken(ctx context.Context, name string, isAdmin bool, keyHash string, capabilities []string) (*storage.Token, error)
	GetTokenByID(ctx context.Context, id int64) (*storage.Token, error)
	GetTokenByHash(ctx context.Context, keyHash string) (*storage.Token, error)
	ListTokens(ctx context.Context) ([]*storage.Token, error)
	DeleteToken(ctx context.Context, id int64) error
	CountAdminTokens(ctx context.Context) (int, error)
}

// ConsentStore reads the consent log.
type ConsentStore interface {
	SearchConsents(ctx context.Context, q storage.ConsentQuery) ([]*storage.ConsentRecord, int64, error)
	ConsentHistory(ctx context.Context, consentID string) ([]*storage.ConsentRecord, error)
	EachConsent(ctx context.Context, search string, fn func(*storage.ConsentRecord) error) error
	ConsentStats(ctx context.Context, since time.Time) (*storage.ConsentStats, error)
}

// ProofGenerator renders and verifies proof of consent documents.
type ProofGenerator interface {
	Generate(ctx context.Context, consentID string, format proof.Format) (*proof.Document, error)
	Verify(ctx context.Context, consentID, claimed string) (bool, error)
}

// CookieManager owns the tracked cookie registry and runs scans.
type CookieManager interface {
	Cookies(ctx context.Context) ([]*storage.TrackedCookie, error)
	Reclassify(ctx context.Context, name, category string) (*storage.TrackedCookie, error)
	Forget(ctx context.Context, name string) error
	Scan(ctx context.Context) (*scanner.Result, error)
	Settings(ctx context.Context) (scanner.Settings, error)
}

// SettingsStore persists JSON settings.
type SettingsStore interface {
	PutSettingJSON(ctx context.Context, key string, v any) error
}

// SettingsApplier applies saved scanner settings to the running process,
// such as moving the daily scan.
type SettingsApplier interface {
	Apply(s scanner.Settings) error
}

// ActivityLog reads and appends to the operational trail.
type ActivityLog interface {
	Recent(ctx context.Context, limit int) ([]*storage.ActivityEntry, error)
	Record(ctx context.Context, message string)
}

// BannerReader reads the consent banner cookie list.
type BannerReader interface {
	Load(ctx context.Context) (banner.List, error)
}

// Services are the domain components exposed by the API. A nil field
// leaves its routes unmounted.
type Services struct {
	Consents ConsentStore
	Proofs   ProofGenerator
	Cookies  CookieManager
	Settings SettingsStore
	Applier  SettingsApplier
	Activity ActivityLog
	Banner   BannerReader

	// ProofFormat is used when a download names no format.
	ProofFormat proof.Format
}

// Handler provides admin endpoints
type Handler struct {
	storage   Storage
	logger    *slog.Logger
	logLevel  *slog.LevelVar
	bootstrap *auth.BootstrapService
	authn     *auth.Authenticator
	svc       Services
	now       func() time.Time

	// runAsync starts background work; replaced in tests.
	runAsync func(func())
}

// NewHandler creates an admin handler
func NewHandler(storage Storage, logLevel *slog.LevelVar, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if logLevel == nil {
		logLevel = new(slog.LevelVar)
	}

	return &Handler{
		storage:  storage,
		logLevel: logLevel,
		logger:   logger,
		authn:    auth.NewAuthenticator(storage, nil),
		now:      time.Now,
		runAsync: func(fn func()) { go fn() },
	}
}

// SetBootstrapService enables master key authentication until the first
// admin token exists.
func (h *Handler) SetBootstrapService(bs *auth.BootstrapService) {
	h.bootstrap = bs
	h.authn = auth.NewAuthenticator(h.storage, bs)
}

// SetServices sets the domain components. It must be called before
// NewRouter.
func (h *Handler) SetServices(s Services) {
	h.svc = s
}

// record appends to the activity log when one is configured.
func (h *Handler) record(ctx context.Context, message string) {
	if h.svc.Activity != nil {
		h.svc.Activity.Record(ctx, message)
	}
}
