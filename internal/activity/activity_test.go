package activity

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/consent-logger/internal/storage"
)

func TestLog_RecordPersistsAndMirrors(t *testing.T) {
	t.Parallel()

	s, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var buf bytes.Buffer
	l := New(s, slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx := context.Background()

	l.Record(ctx, "Starting cookie scan")
	l.Recordf(ctx, "Found %d new cookies", 3)
	l.Record(ctx, "   ")

	entries, err := l.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Found 3 new cookies", entries[0].Message)
	assert.Equal(t, "Starting cookie scan", entries[1].Message)
	assert.Contains(t, buf.String(), "Found 3 new cookies")
}

type failingStore struct{}

func (failingStore) AppendActivity(context.Context, string, time.Time) error {
	return errors.New("boom")
}

func (failingStore) ListActivity(context.Context, int) ([]*storage.ActivityEntry, error) {
	return nil, errors.New("boom")
}

func TestLog_RecordIsBestEffort(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(failingStore{}, slog.New(slog.NewJSONHandler(&buf, nil)))

	assert.NotPanics(t, func() { l.Record(context.Background(), "No new cookies found") })
	assert.Contains(t, buf.String(), "failed to append activity")
}
