package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known settings keys.
const (
	SettingTrackedCookies  = "tracked_cookies"
	SettingScanner         = "scanner_settings"
	SettingBannerCookieMap = "banner_cookie_list"
)

// GetSetting returns the raw value stored under key.
// Returns ErrNotFound if the key has never been written.
func (s *SQLStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT value FROM settings WHERE key = ?"), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, nil
}

// PutSetting stores value under key, replacing any previous value.
func (s *SQLStorage) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		key, value, timestamp(s.now()))
	if err != nil {
		return fmt.Errorf("failed to put setting %q: %w", key, err)
	}
	return nil
}

// GetSettingJSON decodes the JSON value under key into v.
// Returns ErrNotFound if the key has never been written.
func (s *SQLStorage) GetSettingJSON(ctx context.Context, key string, v any) error {
	raw, err := s.GetSetting(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode setting %q: %w", key, err)
	}
	return nil
}

// PutSettingJSON encodes v as JSON and stores it under key.
func (s *SQLStorage) PutSettingJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode setting %q: %w", key, err)
	}
	return s.PutSetting(ctx, key, string(raw))
}

// LoadTrackedCookies returns the tracked-cookie registry keyed by name.
// A registry that was never written is returned as an empty map.
func (s *SQLStorage) LoadTrackedCookies(ctx context.Context) (map[string]*TrackedCookie, error) {
	cookies := make(map[string]*TrackedCookie)
	err := s.GetSettingJSON(ctx, SettingTrackedCookies, &cookies)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if cookies == nil {
		cookies = make(map[string]*TrackedCookie)
	}
	return cookies, nil
}

// SaveTrackedCookies replaces the tracked-cookie registry wholesale.
func (s *SQLStorage) SaveTrackedCookies(ctx context.Context, cookies map[string]*TrackedCookie) error {
	if cookies == nil {
		cookies = map[string]*TrackedCookie{}
	}
	return s.PutSettingJSON(ctx, SettingTrackedCookies, cookies)
}
