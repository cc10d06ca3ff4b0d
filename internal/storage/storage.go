// Package storage handles all database operations for the consent logger.
//
// Two drivers are supported: SQLite (modernc.org/sqlite, the default) and
// PostgreSQL (pgx stdlib). Queries are written with "?" placeholders and
// rebound per dialect.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStorage implements every store interface on top of database/sql.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// New opens a SQLite database at dbPath (":memory:" for tests) and
// initializes the schema.
func New(dbPath string) (*SQLStorage, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects to the database for driver and initializes the schema.
func Open(driver, dsn string) (*SQLStorage, error) {
	switch driver {
	case DriverSQLite, "":
		return openSQLite(dsn)
	case DriverPostgres:
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openSQLite(dbPath string) (*SQLStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite needs a single connection for in-process file
	// databases to avoid "database is locked" errors. It also keeps
	// ":memory:" databases alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close() //nolint:errcheck
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &SQLStorage{db: db, dialect: dialectSQLite, now: time.Now}
	if err := s.InitSchema(context.Background()); err != nil {
		_ = db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func openPostgres(dsn string) (*SQLStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLStorage{db: db, dialect: dialectPostgres, now: time.Now}
	if err := s.InitSchema(ctx); err != nil {
		_ = db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// rebind converts "?" placeholders to "$n" for PostgreSQL.
func (s *SQLStorage) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// timestamp normalizes times written to the database. Microsecond precision
// is the finest both drivers round-trip exactly.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// TokenStore is the subset of storage used for token authentication and
// bootstrap.
type TokenStore interface {
	CreateToken(ctx context.Context, name string, isAdmin bool, keyHash string, capabilities []string) (*Token, error)
	GetTokenByHash(ctx context.Context, keyHash string) (*Token, error)
	GetTokenByID(ctx context.Context, id int64) (*Token, error)
	ListTokens(ctx context.Context) ([]*Token, error)
	DeleteToken(ctx context.Context, id int64) error
	HasAnyAdminToken(ctx context.Context) (bool, error)
	CountAdminTokens(ctx context.Context) (int, error)
}
