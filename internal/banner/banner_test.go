package banner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/consent-logger/internal/activity"
	"github.com/sipico/consent-logger/internal/storage"
)

func newIntegrator(t *testing.T) (*SettingsIntegrator, *storage.SQLStorage, *activity.Log) {
	t.Helper()
	s, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	log := activity.New(s, nil)
	i := NewSettingsIntegrator(s, log)
	i.now = func() time.Time { return time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC) }
	return i, s, log
}

func TestIntegrate_GroupsByCategory(t *testing.T) {
	t.Parallel()
	i, _, log := newIntegrator(t)
	ctx := context.Background()

	err := i.Integrate(ctx, []*storage.TrackedCookie{
		{Name: "_ga", Category: "analytics", Source: "response-header", Description: "Google Analytics - Main cookie", Expires: "max-age=63072000"},
		{Name: "pref", Category: "functional", Source: "script-scan"},
		{Name: "odd", Category: "bogus"},
	})
	require.NoError(t, err)

	list, err := i.Load(ctx)
	require.NoError(t, err)

	ga := list["analytics"]["_ga"]
	assert.Equal(t, "Google Analytics - Main cookie", ga.Description)
	assert.Equal(t, "max-age=63072000", ga.Duration)
	assert.Equal(t, "response-header", ga.Type)
	assert.True(t, ga.AutoAdded)
	assert.Equal(t, time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC), ga.AddedDate)

	pref := list["functional"]["pref"]
	assert.Equal(t, "Auto-discovered cookie", pref.Description)
	assert.Equal(t, "Session", pref.Duration)
	assert.Contains(t, list["functional"], "odd")

	entries, err := log.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Equal(t, "Adding 3 cookies to the consent banner", entries[3].Message)
}

func TestIntegrate_PreservesExistingEntries(t *testing.T) {
	t.Parallel()
	i, s, _ := newIntegrator(t)
	ctx := context.Background()

	require.NoError(t, s.PutSettingJSON(ctx, storage.SettingBannerCookieMap, List{
		"necessary": {"PHPSESSID": {Name: "PHPSESSID", Description: "manual"}},
	}))
	require.NoError(t, i.Integrate(ctx, []*storage.TrackedCookie{{Name: "_fbp", Category: "advertisement"}}))

	list, err := i.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "manual", list["necessary"]["PHPSESSID"].Description)
	assert.Contains(t, list["advertisement"], "_fbp")
}

func TestLoad_EmptyWhenNeverWritten(t *testing.T) {
	t.Parallel()
	i, _, _ := newIntegrator(t)

	list, err := i.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

type brokenStore struct{}

func (brokenStore) GetSettingJSON(context.Context, string, any) error { return storage.ErrNotFound }
func (brokenStore) PutSettingJSON(context.Context, string, any) error { return errors.New("disk full") }

type nopActivity struct{}

func (nopActivity) Record(context.Context, string) {}

func TestIntegrate_SaveFailure(t *testing.T) {
	t.Parallel()

	i := NewSettingsIntegrator(brokenStore{}, nopActivity{})
	err := i.Integrate(context.Background(), []*storage.TrackedCookie{{Name: "x", Category: "analytics"}})
	assert.ErrorContains(t, err, "disk full")
}

func TestNop(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Nop{}.Integrate(context.Background(), nil))
}
