package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const consentColumns = "id, consent_id, domain, status, ip, user_agent, country, categories, created_at"

// InsertConsent appends a consent record and returns its row id.
// CreatedAt defaults to the current time when zero.
func (s *SQLStorage) InsertConsent(ctx context.Context, rec *ConsentRecord) (int64, error) {
	categories := rec.Categories
	if categories == nil {
		categories = map[string]bool{}
	}
	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal categories: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = timestamp(createdAt)

	var id int64
	err = s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO consent_records (consent_id, domain, status, ip, user_agent, country, categories, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		rec.ConsentID, rec.Domain, rec.Status, rec.IP, rec.UserAgent, rec.Country, string(categoriesJSON), createdAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert consent record: %w", err)
	}

	rec.ID = id
	rec.CreatedAt = createdAt
	return id, nil
}

// LatestConsent returns the most recent record for consentID.
// Returns ErrNotFound if no record carries that id.
func (s *SQLStorage) LatestConsent(ctx context.Context, consentID string) (*ConsentRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT "+consentColumns+" FROM consent_records WHERE consent_id = ? ORDER BY created_at DESC, id DESC LIMIT 1"),
		consentID)

	rec, err := scanConsent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get consent record: %w", err)
	}
	return rec, nil
}

// ConsentHistory returns every record for consentID, newest first.
// Returns an empty slice when there are none.
func (s *SQLStorage) ConsentHistory(ctx context.Context, consentID string) ([]*ConsentRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT "+consentColumns+" FROM consent_records WHERE consent_id = ? ORDER BY created_at DESC, id DESC"),
		consentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query consent history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return collectConsents(rows)
}

// SearchConsents returns one page of records, newest first, plus the total
// number of records matching the search.
func (s *SQLStorage) SearchConsents(ctx context.Context, q ConsentQuery) ([]*ConsentRecord, int64, error) {
	where, args := searchClause(q.Search)

	var total int64
	if err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM consent_records"+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count consent records: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := max(q.Offset, 0)

	pageArgs := append(append([]any{}, args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT "+consentColumns+" FROM consent_records"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query consent records: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	records, err := collectConsents(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// EachConsent streams every record matching search, newest first, to fn.
// Iteration stops at the first error fn returns. fn must not call back into
// the store: with SQLite the single connection is held until iteration ends.
func (s *SQLStorage) EachConsent(ctx context.Context, search string, fn func(*ConsentRecord) error) error {
	where, args := searchClause(search)

	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT "+consentColumns+" FROM consent_records"+where+" ORDER BY created_at DESC, id DESC"),
		args...)
	if err != nil {
		return fmt.Errorf("failed to query consent records: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		rec, err := scanConsent(rows)
		if err != nil {
			return fmt.Errorf("failed to scan consent row: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating consent records: %w", err)
	}
	return nil
}

// ConsentStats counts records by status; Recent counts records created at
// or after since.
func (s *SQLStorage) ConsentStats(ctx context.Context, since time.Time) (*ConsentStats, error) {
	var st ConsentStats
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'accepted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
		FROM consent_records`), timestamp(since)).
		Scan(&st.Total, &st.Accepted, &st.Rejected, &st.Recent)
	if err != nil {
		return nil, fmt.Errorf("failed to compute consent stats: %w", err)
	}
	st.Other = st.Total - st.Accepted - st.Rejected
	return &st, nil
}

// PurgeConsentsBefore deletes records created strictly before cutoff and
// returns how many were removed. Only the retention job calls this.
func (s *SQLStorage) PurgeConsentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM consent_records WHERE created_at < ?"), timestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge consent records: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// searchClause builds the WHERE clause for a free-text search.
func searchClause(search string) (string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "", nil
	}

	pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
	clause := ` WHERE LOWER(consent_id) LIKE ? ESCAPE '\'` +
		` OR LOWER(ip) LIKE ? ESCAPE '\'` +
		` OR LOWER(status) LIKE ? ESCAPE '\'` +
		` OR LOWER(domain) LIKE ? ESCAPE '\'`
	return clause, []any{pattern, pattern, pattern, pattern}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*ConsentRecord, error) {
	var rec ConsentRecord
	var categoriesJSON string

	err := row.Scan(&rec.ID, &rec.ConsentID, &rec.Domain, &rec.Status, &rec.IP,
		&rec.UserAgent, &rec.Country, &categoriesJSON, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	rec.Categories = map[string]bool{}
	if categoriesJSON != "" {
		if err := json.Unmarshal([]byte(categoriesJSON), &rec.Categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal categories for record %d: %w", rec.ID, err)
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func collectConsents(rows *sql.Rows) ([]*ConsentRecord, error) {
	records := make([]*ConsentRecord, 0)
	for rows.Next() {
		rec, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating consent records: %w", err)
	}
	return records, nil
}
