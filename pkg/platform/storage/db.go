// pkg/platform/storage/db.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // driver: sqlite
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default DSNs used when the configured DSN is empty.
const (
	DefaultSQLiteDSN   = "file:lti-platform.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
	DefaultPostgresDSN = "postgres://localhost:5432/lti_platform?sslmode=disable"
)

func init() {
	// modernc registers "sqlite"; sqlx only knows "sqlite3".
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB wraps *sqlx.DB with the canonical driver name used to pick SQL dialects.
type DB struct {
	*sqlx.DB
	Driver string
}

// Connect opens a database connection, tunes the pool, applies driver-specific
// pragmas (for SQLite), and verifies connectivity. driver is "sqlite" or
// "postgres" (aliases pg, pgx, sqlite3 accepted).
func Connect(ctx context.Context, driver, dsn string) (*DB, error) {
	canon := normalizeDriver(driver)
	var sqlDriver string
	switch canon {
	case DriverSQLite:
		sqlDriver = "sqlite"
		if strings.TrimSpace(dsn) == "" {
			dsn = DefaultSQLiteDSN
		}
	case DriverPostgres:
		sqlDriver = "pgx"
		if strings.TrimSpace(dsn) == "" {
			dsn = DefaultPostgresDSN
		}
	case "":
		return nil, errors.New("storage: driver is required")
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q (expected postgres|sqlite)", driver)
	}

	db, err := sqlx.ConnectContext(ctx, sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	tunePool(canon, db)

	if canon == DriverSQLite {
		if err := applySQLitePragmas(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &DB{DB: db, Driver: canon}, nil
}

// Close closes the underlying pool (safe to call on nil).
func (d *DB) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// WithTx starts a transaction, runs fn, and commits if fn returns nil.
// If fn returns an error, the transaction is rolled back and that error is returned.
func WithTx(ctx context.Context, d *DB, fn func(*sqlx.Tx) error) (err error) {
	if d == nil || d.DB == nil {
		return errors.New("storage: DB is nil")
	}
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = fmt.Errorf("storage: commit: %w", e)
		}
	}()
	err = fn(tx)
	return
}

func tunePool(driver string, db *sqlx.DB) {
	maxOpen := 20
	maxIdle := 10
	connLife := 45 * time.Minute
	idleLife := 15 * time.Minute

	if driver == DriverSQLite {
		// single writer
		maxOpen = 1
		maxIdle = 1
		connLife = 0
		idleLife = 0
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connLife)
	db.SetConnMaxIdleTime(idleLife)
}

func applySQLitePragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("storage: sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

// normalizeDriver maps common aliases to canonical names.
func normalizeDriver(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	switch d {
	case "pg", "pgsql", "pgx":
		return DriverPostgres
	case "sqlite3":
		return DriverSQLite
	default:
		return d
	}
}
