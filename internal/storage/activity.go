package storage

import (
	"context"
	"fmt"
	"time"
)

// AppendActivity adds a line to the activity log.
func (s *SQLStorage) AppendActivity(ctx context.Context, message string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind("INSERT INTO activity_log (message, created_at) VALUES (?, ?)"),
		message, timestamp(at))
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListActivity returns the latest limit entries, newest first.
func (s *SQLStorage) ListActivity(ctx context.Context, limit int) ([]*ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT id, message, created_at FROM activity_log ORDER BY created_at DESC, id DESC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	entries := make([]*ActivityEntry, 0)
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.ID, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity log: %w", err)
	}
	return entries, nil
}
