// pkg/platform/storage/tools.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

// ToolStore persists tool documents in the tools table. It implements
// tool.Store.
type ToolStore struct {
	DB *DB
}

var _ tool.Store = (*ToolStore)(nil)

type toolRow struct {
	ID         int64  `db:"id"`
	Scope      string `db:"scope"`
	Title      string `db:"title"`
	Slug       string `db:"slug"`
	Status     string `db:"status"`
	Content    string `db:"content"`
	CreatedAt  int64  `db:"created_at"`
	ModifiedAt int64  `db:"modified_at"`
}

const toolColumns = `id, scope, title, slug, status, content, created_at, modified_at`

func (r toolRow) record() tool.Record {
	return tool.Record{
		ID:       r.ID,
		Scope:    tool.Scope(r.Scope),
		Title:    r.Title,
		Slug:     r.Slug,
		Status:   tool.Status(r.Status),
		Content:  r.Content,
		Created:  fromUnix(r.CreatedAt),
		Modified: fromUnix(r.ModifiedAt),
	}
}

func (s *ToolStore) Get(ctx context.Context, id int64) (tool.Record, error) {
	var row toolRow
	err := s.DB.GetContext(ctx, &row, s.DB.Rebind(`SELECT `+toolColumns+` FROM tools WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return tool.Record{}, tool.ErrNotFound
	}
	if err != nil {
		return tool.Record{}, err
	}
	return row.record(), nil
}

func (s *ToolStore) GetBySlug(ctx context.Context, scope tool.Scope, slug string) (tool.Record, error) {
	var row toolRow
	err := s.DB.GetContext(ctx, &row, s.DB.Rebind(`
		SELECT `+toolColumns+` FROM tools
		WHERE scope = ? AND slug = ? AND status <> 'trash'
		ORDER BY id LIMIT 1`), string(scope), slug)
	if errors.Is(err, sql.ErrNoRows) {
		return tool.Record{}, tool.ErrNotFound
	}
	if err != nil {
		return tool.Record{}, err
	}
	return row.record(), nil
}

func (s *ToolStore) List(ctx context.Context, f tool.Filter) ([]tool.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, string(f.Scope))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		in, inArgs, err := sqlx.In("status IN (?)", statuses)
		if err != nil {
			return nil, err
		}
		where = append(where, in)
		args = append(args, inArgs...)
	}
	q := `SELECT ` + toolColumns + ` FROM tools`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id`

	var rows []toolRow
	if err := s.DB.SelectContext(ctx, &rows, s.DB.Rebind(q), args...); err != nil {
		return nil, err
	}
	out := make([]tool.Record, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

func (s *ToolStore) Insert(ctx context.Context, r tool.Record) (int64, error) {
	var id int64
	err := s.DB.QueryRowxContext(ctx, s.DB.Rebind(`
		INSERT INTO tools (scope, title, slug, status, content, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		string(r.Scope), r.Title, r.Slug, string(r.Status), r.Content, toUnix(r.Created), toUnix(r.Modified)).
		Scan(&id)
	if isUniqueViolation(err) {
		return 0, tool.ErrDuplicateCode
	}
	return id, err
}

func (s *ToolStore) Update(ctx context.Context, r tool.Record) error {
	res, err := s.DB.ExecContext(ctx, s.DB.Rebind(`
		UPDATE tools
		SET scope = ?, title = ?, slug = ?, status = ?, content = ?, modified_at = ?
		WHERE id = ?`),
		string(r.Scope), r.Title, r.Slug, string(r.Status), r.Content, toUnix(r.Modified), r.ID)
	if isUniqueViolation(err) {
		return tool.ErrDuplicateCode
	}
	if err != nil {
		return err
	}
	return expectRow(res, tool.ErrNotFound)
}

func (s *ToolStore) Delete(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, s.DB.Rebind(`DELETE FROM tools WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectRow(res, tool.ErrNotFound)
}

// TouchLastAccess rewrites only the last-access key of the document inside
// one transaction, so a concurrent admin save is never overwritten with
// stale fields. Status and modified_at are left alone.
func (s *ToolStore) TouchLastAccess(ctx context.Context, id int64, day time.Time) (bool, error) {
	var wrote bool
	err := WithTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		q := `SELECT content FROM tools WHERE id = ?`
		if s.DB.Driver == DriverPostgres {
			q += ` FOR UPDATE`
		}
		var content string
		err := tx.GetContext(ctx, &content, tx.Rebind(q), id)
		if errors.Is(err, sql.ErrNoRows) {
			return tool.ErrNotFound
		}
		if err != nil {
			return err
		}
		next, changed, err := tool.StampLastAccess(content, day)
		if err != nil || !changed {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tools SET content = ? WHERE id = ?`), next, id)
		if err != nil {
			return err
		}
		if err := expectRow(res, tool.ErrNotFound); err != nil {
			return err
		}
		wrote = true
		return nil
	})
	return wrote, err
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// isUniqueViolation recognises unique-index failures from pgx and sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqErr.Error(), "UNIQUE")
	}
	return false
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
