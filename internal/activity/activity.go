// Package activity keeps the operational trail shown to administrators:
// scan starts, discoveries, integration and notification outcomes.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sipico/consent-logger/internal/consent"
	"github.com/sipico/consent-logger/internal/storage"
)

// DefaultLimit is how many entries Recent returns when no limit is given.
const DefaultLimit = 100

const maxMessageLen = 1000

// Store persists activity entries.
type Store interface {
	AppendActivity(ctx context.Context, message string, at time.Time) error
	ListActivity(ctx context.Context, limit int) ([]*storage.ActivityEntry, error)
}

// Log appends entries to the store and mirrors them to the structured log.
// Writing is best-effort: a failed append is logged, never returned.
type Log struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates an activity log. A nil logger uses slog.Default().
func New(store Store, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{store: store, logger: logger, now: time.Now}
}

// Record appends message to the trail.
func (l *Log) Record(ctx context.Context, message string) {
	message = consent.SanitizeText(message, maxMessageLen)
	if message == "" {
		return
	}

	l.logger.Info("activity", "message", message)
	if err := l.store.AppendActivity(ctx, message, l.now()); err != nil {
		l.logger.Error("failed to append activity", "message", message, "error", err)
	}
}

// Recordf formats and appends a message.
func (l *Log) Recordf(ctx context.Context, format string, args ...any) {
	l.Record(ctx, fmt.Sprintf(format, args...))
}

// Recent returns the latest entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]*storage.ActivityEntry, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	return l.store.ListActivity(ctx, limit)
}
