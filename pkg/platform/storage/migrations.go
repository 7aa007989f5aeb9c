// pkg/platform/storage/migrations.go
package storage

import (
	"context"
	"fmt"
	"strings"
)

// Up applies idempotent DDL for the platform tables:
//   - tools: one document per tool (title, slug, status, JSON settings)
//   - posts: the pages links are embedded in
//
// Call this once on startup, after Connect.
func Up(ctx context.Context, db *DB) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("migrations: db is nil")
	}

	var schema string
	switch db.Driver {
	case DriverPostgres:
		schema = schemaPostgres
	case DriverSQLite:
		schema = schemaSQLite
	default:
		return fmt.Errorf("migrations: unsupported driver %q (expected postgres|sqlite)", db.Driver)
	}

	// Try to run as a single script; if the driver rejects multiple statements,
	// fall back to one statement at a time.
	if _, err := db.ExecContext(ctx, schema); err != nil {
		for _, stmt := range splitSQL(schema) {
			if _, e := db.ExecContext(ctx, stmt); e != nil {
				return fmt.Errorf("migrations: failed at:\n%s\nerr: %w", firstLine(stmt), e)
			}
		}
	}
	return nil
}

/* ----------------------------- POSTGRES SCHEMA ----------------------------- */

const schemaPostgres = `
-- Tools ----------------------------------------------------------------------
CREATE TABLE IF NOT EXISTS tools (
  id                 BIGSERIAL PRIMARY KEY,
  scope              TEXT NOT NULL CHECK (scope IN ('site','network')),
  title              TEXT NOT NULL DEFAULT '',        -- tool name
  slug               TEXT NOT NULL,                   -- tool code
  status             TEXT NOT NULL CHECK (status IN ('publish','draft','trash')),
  content            TEXT NOT NULL DEFAULT '{}',      -- JSON settings document
  created_at         BIGINT NOT NULL,
  modified_at        BIGINT NOT NULL
);

-- A code is unique among non-deleted tools of one scope.
CREATE UNIQUE INDEX IF NOT EXISTS tools_scope_slug_live_idx
  ON tools (scope, slug) WHERE status <> 'trash';

CREATE INDEX IF NOT EXISTS tools_scope_status_idx
  ON tools (scope, status);

-- Posts ----------------------------------------------------------------------
CREATE TABLE IF NOT EXISTS posts (
  id                 BIGSERIAL PRIMARY KEY,
  title              TEXT NOT NULL DEFAULT '',
  content            TEXT NOT NULL DEFAULT '',
  status             TEXT NOT NULL DEFAULT 'publish', -- publish|draft|private
  created_at         BIGINT NOT NULL,
  modified_at        BIGINT NOT NULL
);
`

/* ------------------------------ SQLITE SCHEMA ------------------------------ */

const schemaSQLite = `
-- Tools ----------------------------------------------------------------------
CREATE TABLE IF NOT EXISTS tools (
  id                 INTEGER PRIMARY KEY AUTOINCREMENT,
  scope              TEXT NOT NULL CHECK (scope IN ('site','network')),
  title              TEXT NOT NULL DEFAULT '',
  slug               TEXT NOT NULL,
  status             TEXT NOT NULL CHECK (status IN ('publish','draft','trash')),
  content            TEXT NOT NULL DEFAULT '{}',
  created_at         INTEGER NOT NULL,
  modified_at        INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS tools_scope_slug_live_idx
  ON tools (scope, slug) WHERE status <> 'trash';

CREATE INDEX IF NOT EXISTS tools_scope_status_idx
  ON tools (scope, status);

-- Posts ----------------------------------------------------------------------
CREATE TABLE IF NOT EXISTS posts (
  id                 INTEGER PRIMARY KEY AUTOINCREMENT,
  title              TEXT NOT NULL DEFAULT '',
  content            TEXT NOT NULL DEFAULT '',
  status             TEXT NOT NULL DEFAULT 'publish',
  created_at         INTEGER NOT NULL,
  modified_at        INTEGER NOT NULL
);
`

/* ------------------------------ LOCAL HELPERS ------------------------------ */

// splitSQL splits on ';' boundaries, dropping comment-only fragments.
func splitSQL(s string) []string {
	raw := strings.Split(s, ";")
	out := make([]string, 0, len(raw))
	for _, part := range raw {
		if strings.TrimSpace(stripComments(part)) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(part)+";")
	}
	return out
}

func stripComments(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if i := strings.Index(line, "--"); i >= 0 {
			line = line[:i]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
