// Package consent captures consent decisions and turns them into
// append-only records.
package consent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sipico/consent-logger/internal/anonymize"
	"github.com/sipico/consent-logger/internal/storage"
)

// Field limits. Values over a limit are rejected, except the user agent
// and domain which are cut.
const (
	MaxStatusLen      = 20
	MaxConsentIDLen   = 64
	MaxCategories     = 32
	MaxCategoryKeyLen = 64
	MaxUserAgentLen   = 512
	MaxDomainLen      = 255
	MaxCountryLen     = 100
)

// Payload is a consent submission from a client.
type Payload struct {
	Status     string          `json:"status"`
	Categories map[string]bool `json:"categories"`
	ConsentID  string          `json:"consentId"`
}

// Meta is request context captured by the transport, never by the client.
type Meta struct {
	RemoteIP  string // bare address, no port
	UserAgent string
	Host      string
	Country   string
}

// Store persists consent records.
type Store interface {
	InsertConsent(ctx context.Context, rec *storage.ConsentRecord) (int64, error)
}

// Recorder validates submissions and appends them to the store.
// It holds no per-request state and is safe for concurrent use.
type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithIDGenerator overrides how missing consent ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(r *Recorder) {
		r.newID = gen
	}
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates p and appends exactly one record. Identical payloads
// produce separate records.
//
// Errors wrap ErrInvalidPayload or ErrStorageFailure.
func (r *Recorder) Record(ctx context.Context, p Payload, m Meta) (*storage.ConsentRecord, error) {
	rec, err := r.build(p, m)
	if err != nil {
		return nil, err
	}

	if _, err := r.store.InsertConsent(ctx, rec); err != nil {
		r.logger.Error("failed to store consent record", "status", rec.Status, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	r.logger.Debug("consent recorded",
		"status", rec.Status,
		"domain", rec.Domain,
		"ip", rec.IP,
	)
	return rec, nil
}

func (r *Recorder) build(p Payload, m Meta) (*storage.ConsentRecord, error) {
	status := SanitizeText(p.Status, 0)
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", ErrInvalidPayload)
	}
	if utf8.RuneCountInString(status) > MaxStatusLen {
		return nil, fmt.Errorf("%w: status exceeds %d characters", ErrInvalidPayload, MaxStatusLen)
	}

	consentID := SanitizeText(p.ConsentID, 0)
	if utf8.RuneCountInString(consentID) > MaxConsentIDLen {
		return nil, fmt.Errorf("%w: consentId exceeds %d characters", ErrInvalidPayload, MaxConsentIDLen)
	}
	if consentID == "" {
		consentID = r.newID()
	}

	if len(p.Categories) > MaxCategories {
		return nil, fmt.Errorf("%w: at most %d categories allowed", ErrInvalidPayload, MaxCategories)
	}
	categories := make(map[string]bool, len(p.Categories))
	for k, v := range p.Categories {
		key := SanitizeText(k, 0)
		if key == "" || utf8.RuneCountInString(key) > MaxCategoryKeyLen {
			return nil, fmt.Errorf("%w: invalid category name %q", ErrInvalidPayload, k)
		}
		categories[key] = v
	}

	return &storage.ConsentRecord{
		ConsentID:  consentID,
		Domain:     SanitizeText(strings.ToLower(m.Host), MaxDomainLen),
		Status:     status,
		Categories: categories,
		IP:         anonymize.IP(m.RemoteIP),
		UserAgent:  SanitizeText(m.UserAgent, MaxUserAgentLen),
		Country:    SanitizeText(m.Country, MaxCountryLen),
		CreatedAt:  r.now(),
	}, nil
}
