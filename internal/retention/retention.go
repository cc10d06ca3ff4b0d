// Package retention deletes consent records older than the retention
// period.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sipico/consent-logger/internal/metrics"
)

// MinMonths is the shortest retention period allowed. Proof of consent must
// stay available for at least a year.
const MinMonths = 12

// ErrRetentionTooShort is returned for a period below MinMonths.
var ErrRetentionTooShort = fmt.Errorf("retention period must be at least %d months", MinMonths)

// ErrDisabled is returned by Run when retention is switched off.
var ErrDisabled = errors.New("retention is disabled")

// Store deletes old consent records.
type Store interface {
	PurgeConsentsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActivityRecorder appends to the operational trail.
type ActivityRecorder interface {
	Record(ctx context.Context, message string)
}

// Purger runs the retention job.
type Purger struct {
	store    Store
	activity ActivityRecorder
	months   int
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Purger keeping months of records. Zero months disables
// purging.
func New(store Store, activity ActivityRecorder, months int, logger *slog.Logger) (*Purger, error) {
	if months != 0 && months < MinMonths {
		return nil, ErrRetentionTooShort
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{
		store:    store,
		activity: activity,
		months:   months,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Enabled reports whether records are ever purged.
func (p *Purger) Enabled() bool {
	return p.months > 0
}

// Cutoff returns the oldest creation time that is kept.
func (p *Purger) Cutoff() time.Time {
	return p.now().UTC().AddDate(0, -p.months, 0)
}

// Run deletes records created before the cutoff and returns how many were
// removed.
func (p *Purger) Run(ctx context.Context) (int64, error) {
	if !p.Enabled() {
		return 0, ErrDisabled
	}

	cutoff := p.Cutoff()
	n, err := p.store.PurgeConsentsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge consent records: %w", err)
	}

	metrics.RecordConsentsPurged(n)
	p.logger.Info("retention run finished", "deleted", n, "cutoff", cutoff)
	if n > 0 {
		p.activity.Record(ctx, fmt.Sprintf("Deleted %d consent records older than %d months", n, p.months))
	}
	return n, nil
}
