// Package proof produces tamper-evident proof of consent documents.
//
// A document is a pure function of the stored record, the server secret
// and the site details: generating it twice yields the same digest and the
// same bytes.
package proof

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sipico/consent-logger/internal/metrics"
	"github.com/sipico/consent-logger/internal/storage"
)

// MinSecretLen is the minimum length of the proof secret in bytes.
const MinSecretLen = 32

var (
	// ErrNotFound is returned for an unknown consent id.
	ErrNotFound = errors.New("consent record not found")
	// ErrSecretTooShort is returned when the secret is under MinSecretLen bytes.
	ErrSecretTooShort = fmt.Errorf("proof secret must be at least %d bytes", MinSecretLen)
	// ErrUnknownFormat is returned for an unsupported output format.
	ErrUnknownFormat = errors.New("unknown proof format")
)

// Format is a document output format.
type Format string

// Supported formats.
const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// ParseFormat parses a format name. Empty means PDF.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "application/pdf"
}

// Document is a rendered proof.
type Document struct {
	Body        []byte
	Format      Format
	ContentType string
	Filename    string
	Digest      string
	DocumentID  string
}

// Store looks up consent records.
type Store interface {
	LatestConsent(ctx context.Context, consentID string) (*storage.ConsentRecord, error)
}

// Generator renders proofs. It holds no per-request state.
type Generator struct {
	store     Store
	key       []byte
	site      SiteInfo
	logger    *slog.Logger
	renderPDF func(*Model, *storage.ConsentRecord) ([]byte, error)
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// NewGenerator creates a Generator. The proof key is derived from secret.
func NewGenerator(store Store, secret []byte, site SiteInfo, opts ...Option) (*Generator, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrSecretTooShort
	}
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		store:  store,
		key:    key,
		site:   site,
		logger: slog.Default(),
		renderPDF: func(m *Model, rec *storage.ConsentRecord) ([]byte, error) {
			return renderPDF(m, rec.CreatedAt.UTC())
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate renders the proof for the most recent record of consentID. If
// the PDF renderer fails the HTML document is returned instead.
func (g *Generator) Generate(ctx context.Context, consentID string, format Format) (*Document, error) {
	rec, err := g.lookup(ctx, consentID)
	if err != nil {
		return nil, err
	}

	dig, err := digest(rec, g.key)
	if err != nil {
		return nil, err
	}
	m := buildModel(rec, dig, g.site)

	var body []byte
	if format == FormatPDF {
		body, err = g.renderPDF(m, rec)
		if err != nil {
			g.logger.Warn("pdf rendering failed, falling back to html", "consent_id", consentID, "error", err)
			format = FormatHTML
		}
	}
	if format == FormatHTML {
		body, err = renderHTML(m)
		if err != nil {
			return nil, err
		}
	}
	if body == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	metrics.RecordProof(string(format))
	return &Document{
		Body:        body,
		Format:      format,
		ContentType: format.ContentType(),
		Filename:    "consent-log-" + safeFilename(rec.ConsentID) + "." + string(format),
		Digest:      dig,
		DocumentID:  m.DocumentID,
	}, nil
}

// Digest returns the digest of the most recent record of consentID.
func (g *Generator) Digest(ctx context.Context, consentID string) (string, error) {
	rec, err := g.lookup(ctx, consentID)
	if err != nil {
		return "", err
	}
	return digest(rec, g.key)
}

// Verify reports whether claimed matches the current digest of the record.
func (g *Generator) Verify(ctx context.Context, consentID, claimed string) (bool, error) {
	actual, err := g.Digest(ctx, consentID)
	if err != nil {
		return false, err
	}
	claimed = strings.ToLower(strings.TrimSpace(claimed))
	return subtle.ConstantTimeCompare([]byte(actual), []byte(claimed)) == 1, nil
}

func (g *Generator) lookup(ctx context.Context, consentID string) (*storage.ConsentRecord, error) {
	rec, err := g.store.LatestConsent(ctx, consentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, consentID)
		}
		return nil, fmt.Errorf("failed to load consent record: %w", err)
	}
	return rec, nil
}

// safeFilename keeps characters that need no quoting in a
// Content-Disposition filename.
func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
