package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/sipico/consent-logger/internal/schedule"
	"github.com/sipico/consent-logger/internal/storage"
)

// Settings are the operator-editable scanner options, persisted under
// storage.SettingScanner. They are loaded once per run.
type Settings struct {
	Enabled            bool   `json:"scan_enabled"`
	Time               string `json:"scan_time"`
	EmailNotifications bool   `json:"email_notifications"`
	AutoCategorize     bool   `json:"auto_categorize"`
	BannerIntegration  bool   `json:"banner_integration"`
}

// DefaultSettings are used when nothing has been saved.
func DefaultSettings() Settings {
	return Settings{
		Enabled:            true,
		Time:               "02:00",
		EmailNotifications: true,
		AutoCategorize:     true,
		BannerIntegration:  true,
	}
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	if _, _, err := schedule.ParseTimeOfDay(s.Time); err != nil {
		return fmt.Errorf("scan_time: %w", err)
	}
	return nil
}

// SettingsReader reads JSON settings.
type SettingsReader interface {
	GetSettingJSON(ctx context.Context, key string, v any) error
}

// LoadSettings returns the saved settings, or defaults if none were saved.
func LoadSettings(ctx context.Context, r SettingsReader, defaults Settings) (Settings, error) {
	s := defaults
	if err := r.GetSettingJSON(ctx, storage.SettingScanner, &s); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return defaults, nil
		}
		return defaults, fmt.Errorf("failed to load scanner settings: %w", err)
	}
	if s.Time == "" {
		s.Time = defaults.Time
	}
	return s, nil
}
