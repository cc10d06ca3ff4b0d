// Package banner copies newly discovered cookies into the consent banner's
// cookie list, grouped by category.
package banner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sipico/consent-logger/internal/classifier"
	"github.com/sipico/consent-logger/internal/storage"
)

// Entry is one cookie in the banner cookie list.
type Entry struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Duration    string    `json:"duration"`
	Type        string    `json:"type"`
	AutoAdded   bool      `json:"auto_added"`
	AddedDate   time.Time `json:"added_date"`
}

// List maps category to cookie name to entry.
type List map[string]map[string]Entry

// Store reads and writes JSON settings.
type Store interface {
	GetSettingJSON(ctx context.Context, key string, v any) error
	PutSettingJSON(ctx context.Context, key string, v any) error
}

// ActivityRecorder appends to the operational trail.
type ActivityRecorder interface {
	Record(ctx context.Context, message string)
}

// Nop ignores all cookies. Used when no banner is configured.
type Nop struct{}

// Integrate implements the scanner's Integrator.
func (Nop) Integrate(context.Context, []*storage.TrackedCookie) error { return nil }

// SettingsIntegrator keeps the banner cookie list in the settings store
// under storage.SettingBannerCookieMap.
type SettingsIntegrator struct {
	store    Store
	activity ActivityRecorder
	now      func() time.Time
}

// NewSettingsIntegrator creates an integrator writing to store.
func NewSettingsIntegrator(store Store, activity ActivityRecorder) *SettingsIntegrator {
	return &SettingsIntegrator{store: store, activity: activity, now: time.Now}
}

// Load returns the current banner cookie list.
func (i *SettingsIntegrator) Load(ctx context.Context) (List, error) {
	list := List{}
	if err := i.store.GetSettingJSON(ctx, storage.SettingBannerCookieMap, &list); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return List{}, nil
		}
		return nil, fmt.Errorf("failed to load banner cookie list: %w", err)
	}
	if list == nil {
		list = List{}
	}
	return list, nil
}

// Integrate adds cookies to the list under their category. Existing entries
// for the same name and category are overwritten.
func (i *SettingsIntegrator) Integrate(ctx context.Context, cookies []*storage.TrackedCookie) error {
	if len(cookies) == 0 {
		return nil
	}
	i.activity.Record(ctx, fmt.Sprintf("Adding %d cookies to the consent banner", len(cookies)))

	list, err := i.Load(ctx)
	if err != nil {
		return err
	}

	added := i.now().UTC()
	for _, c := range cookies {
		category := c.Category
		if _, ok := classifier.Parse(category); !ok {
			category = string(classifier.Default)
		}
		if list[category] == nil {
			list[category] = make(map[string]Entry)
		}
		list[category][c.Name] = Entry{
			Name:        c.Name,
			Description: orDefault(c.Description, "Auto-discovered cookie"),
			Duration:    orDefault(c.Expires, "Session"),
			Type:        orDefault(c.Source, "http_cookie"),
			AutoAdded:   true,
			AddedDate:   added,
		}
	}

	if err := i.store.PutSettingJSON(ctx, storage.SettingBannerCookieMap, list); err != nil {
		return fmt.Errorf("failed to save banner cookie list: %w", err)
	}

	for _, c := range cookies {
		i.activity.Record(ctx, fmt.Sprintf("Added cookie '%s' to banner category '%s'", c.Name, c.Category))
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
