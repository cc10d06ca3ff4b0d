package storage

import (
	"context"
	"fmt"
)

// sqliteSchema creates all tables, indexes and triggers for SQLite.
var sqliteSchema = []string{
	// consent_records: append-only log of consent decisions
	`CREATE TABLE IF NOT EXISTS consent_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		consent_id TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		categories TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consent_records_consent_id ON consent_records(consent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_consent_records_created_at ON consent_records(created_at)`,
	`CREATE TRIGGER IF NOT EXISTS consent_records_no_update
		BEFORE UPDATE ON consent_records
		BEGIN
			SELECT RAISE(ABORT, 'consent records are append-only');
		END`,

	`CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_log_created_at ON activity_log(created_at)`,

	// settings: key -> JSON document (tracked cookies, scanner settings, banner list)
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS token_capabilities (
		token_id INTEGER NOT NULL REFERENCES tokens(id) ON DELETE CASCADE,
		capability TEXT NOT NULL,
		PRIMARY KEY (token_id, capability)
	)`,
}

// postgresSchema mirrors sqliteSchema for PostgreSQL.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS consent_records (
		id BIGSERIAL PRIMARY KEY,
		consent_id VARCHAR(64) NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		ip VARCHAR(45) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		country VARCHAR(100) NOT NULL DEFAULT '',
		categories TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consent_records_consent_id ON consent_records(consent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_consent_records_created_at ON consent_records(created_at)`,
	`CREATE OR REPLACE FUNCTION consent_records_reject_update() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'consent records are append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS consent_records_no_update ON consent_records`,
	`CREATE TRIGGER consent_records_no_update
		BEFORE UPDATE ON consent_records
		FOR EACH ROW EXECUTE FUNCTION consent_records_reject_update()`,

	`CREATE TABLE IF NOT EXISTS activity_log (
		id BIGSERIAL PRIMARY KEY,
		message TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_log_created_at ON activity_log(created_at)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS tokens (
		id BIGSERIAL PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS token_capabilities (
		token_id BIGINT NOT NULL REFERENCES tokens(id) ON DELETE CASCADE,
		capability TEXT NOT NULL,
		PRIMARY KEY (token_id, capability)
	)`,
}

// InitSchema creates all required tables, indexes and triggers.
// This is idempotent - safe to call multiple times.
func (s *SQLStorage) InitSchema(ctx context.Context) error {
	ddl := sqliteSchema
	if s.dialect == dialectPostgres {
		ddl = postgresSchema
	}

	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}
	return nil
}
