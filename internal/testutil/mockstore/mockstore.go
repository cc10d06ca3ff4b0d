// Package mockstore provides a configurable mock implementation of storage interfaces for testing.
//
// The MockStorage type uses function fields for each method, allowing tests to customize behavior
// as needed while providing sensible defaults for methods that aren't customized.
package mockstore

import (
	"context"
	"time"

	"github.com/sipico/consent-logger/internal/storage"
)

// MockStorage is a configurable mock of the token, consent and settings
// stores. Each method can be customized by setting the corresponding
// function field. If a function field is nil, the method returns a
// sensible default value.
type MockStorage struct {
	// Token operations (storage.TokenStore interface)
	CreateTokenFunc      func(ctx context.Context, name string, isAdmin bool, keyHash string, capabilities []string) (*storage.Token, error)
	GetTokenByHashFunc   func(ctx context.Context, keyHash string) (*storage.Token, error)
	GetTokenByIDFunc     func(ctx context.Context, id int64) (*storage.Token, error)
	ListTokensFunc       func(ctx context.Context) ([]*storage.Token, error)
	DeleteTokenFunc      func(ctx context.Context, id int64) error
	HasAnyAdminTokenFunc func(ctx context.Context) (bool, error)
	CountAdminTokensFunc func(ctx context.Context) (int, error)

	// Consent log operations
	InsertConsentFunc  func(ctx context.Context, rec *storage.ConsentRecord) (int64, error)
	LatestConsentFunc  func(ctx context.Context, consentID string) (*storage.ConsentRecord, error)
	ConsentHistoryFunc func(ctx context.Context, consentID string) ([]*storage.ConsentRecord, error)
	SearchConsentsFunc func(ctx context.Context, q storage.ConsentQuery) ([]*storage.ConsentRecord, int64, error)
	EachConsentFunc    func(ctx context.Context, search string, fn func(*storage.ConsentRecord) error) error
	ConsentStatsFunc   func(ctx context.Context, since time.Time) (*storage.ConsentStats, error)
	PurgeConsentsFunc  func(ctx context.Context, cutoff time.Time) (int64, error)

	// Settings operations
	GetSettingJSONFunc func(ctx context.Context, key string, v any) error
	PutSettingJSONFunc func(ctx context.Context, key string, v any) error

	// Lifecycle
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error
}

// CreateToken creates a new token.
func (m *MockStorage) CreateToken(ctx context.Context, name string, isAdmin bool, keyHash string, capabilities []string) (*storage.Token, error) {
	if m.CreateTokenFunc != nil {
		return m.CreateTokenFunc(ctx, name, isAdmin, keyHash, capabilities)
	}
	return &storage.Token{
		ID:           1,
		Name:         name,
		IsAdmin:      isAdmin,
		KeyHash:      keyHash,
		Capabilities: capabilities,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// GetTokenByHash retrieves a token by its key hash.
func (m *MockStorage) GetTokenByHash(ctx context.Context, keyHash string) (*storage.Token, error) {
	if m.GetTokenByHashFunc != nil {
		return m.GetTokenByHashFunc(ctx, keyHash)
	}
	return nil, storage.ErrNotFound
}

// GetTokenByID retrieves a token by ID.
func (m *MockStorage) GetTokenByID(ctx context.Context, id int64) (*storage.Token, error) {
	if m.GetTokenByIDFunc != nil {
		return m.GetTokenByIDFunc(ctx, id)
	}
	return nil, storage.ErrNotFound
}

// ListTokens retrieves all tokens.
func (m *MockStorage) ListTokens(ctx context.Context) ([]*storage.Token, error) {
	if m.ListTokensFunc != nil {
		return m.ListTokensFunc(ctx)
	}
	return []*storage.Token{}, nil
}

// DeleteToken deletes a token by ID.
func (m *MockStorage) DeleteToken(ctx context.Context, id int64) error {
	if m.DeleteTokenFunc != nil {
		return m.DeleteTokenFunc(ctx, id)
	}
	return nil
}

// HasAnyAdminToken checks if there are any admin tokens.
func (m *MockStorage) HasAnyAdminToken(ctx context.Context) (bool, error) {
	if m.HasAnyAdminTokenFunc != nil {
		return m.HasAnyAdminTokenFunc(ctx)
	}
	return false, nil
}

// CountAdminTokens returns the count of admin tokens.
func (m *MockStorage) CountAdminTokens(ctx context.Context) (int, error) {
	if m.CountAdminTokensFunc != nil {
		return m.CountAdminTokensFunc(ctx)
	}
	return 0, nil
}

// InsertConsent appends a consent record. The default assigns ID 1.
func (m *MockStorage) InsertConsent(ctx context.Context, rec *storage.ConsentRecord) (int64, error) {
	if m.InsertConsentFunc != nil {
		return m.InsertConsentFunc(ctx, rec)
	}
	rec.ID = 1
	return 1, nil
}

// LatestConsent returns the newest record for consentID.
func (m *MockStorage) LatestConsent(ctx context.Context, consentID string) (*storage.ConsentRecord, error) {
	if m.LatestConsentFunc != nil {
		return m.LatestConsentFunc(ctx, consentID)
	}
	return nil, storage.ErrNotFound
}

// ConsentHistory returns every record for consentID.
func (m *MockStorage) ConsentHistory(ctx context.Context, consentID string) ([]*storage.ConsentRecord, error) {
	if m.ConsentHistoryFunc != nil {
		return m.ConsentHistoryFunc(ctx, consentID)
	}
	return []*storage.ConsentRecord{}, nil
}

// SearchConsents returns one page of records.
func (m *MockStorage) SearchConsents(ctx context.Context, q storage.ConsentQuery) ([]*storage.ConsentRecord, int64, error) {
	if m.SearchConsentsFunc != nil {
		return m.SearchConsentsFunc(ctx, q)
	}
	return []*storage.ConsentRecord{}, 0, nil
}

// EachConsent streams records to fn. The default streams nothing.
func (m *MockStorage) EachConsent(ctx context.Context, search string, fn func(*storage.ConsentRecord) error) error {
	if m.EachConsentFunc != nil {
		return m.EachConsentFunc(ctx, search, fn)
	}
	return nil
}

// ConsentStats summarizes the log.
func (m *MockStorage) ConsentStats(ctx context.Context, since time.Time) (*storage.ConsentStats, error) {
	if m.ConsentStatsFunc != nil {
		return m.ConsentStatsFunc(ctx, since)
	}
	return &storage.ConsentStats{}, nil
}

// PurgeConsentsBefore deletes old records.
func (m *MockStorage) PurgeConsentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.PurgeConsentsFunc != nil {
		return m.PurgeConsentsFunc(ctx, cutoff)
	}
	return 0, nil
}

// GetSettingJSON reads a setting. The default reports it was never written.
func (m *MockStorage) GetSettingJSON(ctx context.Context, key string, v any) error {
	if m.GetSettingJSONFunc != nil {
		return m.GetSettingJSONFunc(ctx, key, v)
	}
	return storage.ErrNotFound
}

// PutSettingJSON writes a setting.
func (m *MockStorage) PutSettingJSON(ctx context.Context, key string, v any) error {
	if m.PutSettingJSONFunc != nil {
		return m.PutSettingJSONFunc(ctx, key, v)
	}
	return nil
}

// Ping verifies database connectivity with a lightweight query.
func (m *MockStorage) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Close closes the storage connection.
func (m *MockStorage) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
