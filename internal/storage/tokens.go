package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
)

const tokenColumns = "id, key_hash, name, is_admin, created_at"

// CreateToken creates a new token with the given capabilities.
// Returns ErrDuplicate if a token with this hash already exists.
func (s *SQLStorage) CreateToken(ctx context.Context, name string, isAdmin bool, keyHash string, capabilities []string) (*Token, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	createdAt := timestamp(s.now())

	var id int64
	err = tx.QueryRowContext(ctx, s.rebind(
		"INSERT INTO tokens (key_hash, name, is_admin, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
		keyHash, name, isAdmin, createdAt).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	caps := normalizeCapabilities(capabilities)
	for _, c := range caps {
		if _, err := tx.ExecContext(ctx, s.rebind(
			"INSERT INTO token_capabilities (token_id, capability) VALUES (?, ?)"), id, c); err != nil {
			return nil, fmt.Errorf("failed to add capability %q: %w", c, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit token: %w", err)
	}

	return &Token{
		ID:           id,
		KeyHash:      keyHash,
		Name:         name,
		IsAdmin:      isAdmin,
		Capabilities: caps,
		CreatedAt:    createdAt,
	}, nil
}

// GetTokenByHash retrieves a token by its hash.
// This is used during authentication to look up the token.
// Returns ErrNotFound if the hash doesn't exist.
func (s *SQLStorage) GetTokenByHash(ctx context.Context, keyHash string) (*Token, error) {
	return s.getToken(ctx, "key_hash = ?", keyHash)
}

// GetTokenByID retrieves a token by ID.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLStorage) GetTokenByID(ctx context.Context, id int64) (*Token, error) {
	return s.getToken(ctx, "id = ?", id)
}

func (s *SQLStorage) getToken(ctx context.Context, cond string, arg any) (*Token, error) {
	var t Token
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT "+tokenColumns+" FROM tokens WHERE "+cond), arg).
		Scan(&t.ID, &t.KeyHash, &t.Name, &t.IsAdmin, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	caps, err := s.capabilities(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Capabilities = caps
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (s *SQLStorage) capabilities(ctx context.Context, tokenID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT capability FROM token_capabilities WHERE token_id = ? ORDER BY capability"), tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query capabilities: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	caps := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		caps = append(caps, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating capabilities: %w", err)
	}
	return caps, nil
}

// ListTokens returns all tokens with their capabilities, newest first.
// Returns empty slice if no tokens exist.
func (s *SQLStorage) ListTokens(ctx context.Context) ([]*Token, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+tokenColumns+" FROM tokens ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}

	tokens := make([]*Token, 0)
	byID := make(map[int64]*Token)
	for rows.Next() {
		var t Token
		if err := rows.Scan(&t.ID, &t.KeyHash, &t.Name, &t.IsAdmin, &t.CreatedAt); err != nil {
			_ = rows.Close() //nolint:errcheck
			return nil, fmt.Errorf("failed to scan token row: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		t.Capabilities = make([]string, 0)
		tokens = append(tokens, &t)
		byID[t.ID] = &t
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close() //nolint:errcheck
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}
	_ = rows.Close() //nolint:errcheck

	capRows, err := s.db.QueryContext(ctx, "SELECT token_id, capability FROM token_capabilities ORDER BY token_id, capability")
	if err != nil {
		return nil, fmt.Errorf("failed to query capabilities: %w", err)
	}
	defer capRows.Close() //nolint:errcheck

	for capRows.Next() {
		var id int64
		var c string
		if err := capRows.Scan(&id, &c); err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		if t, ok := byID[id]; ok {
			t.Capabilities = append(t.Capabilities, c)
		}
	}
	if err := capRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating capabilities: %w", err)
	}

	return tokens, nil
}

// DeleteToken deletes a token by ID. Capabilities cascade.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLStorage) DeleteToken(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM tokens WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// HasAnyAdminToken checks if there are any admin tokens.
func (s *SQLStorage) HasAnyAdminToken(ctx context.Context) (bool, error) {
	count, err := s.CountAdminTokens(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountAdminTokens returns the number of admin tokens.
func (s *SQLStorage) CountAdminTokens(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tokens WHERE is_admin = TRUE").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count admin tokens: %w", err)
	}
	return count, nil
}

// normalizeCapabilities sorts and de-duplicates capability names.
func normalizeCapabilities(caps []string) []string {
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		if c != "" {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
