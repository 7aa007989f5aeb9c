// pkg/platform/storage/posts.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mind-engage/lti-platform/pkg/platform/content"
)

// PostStore persists posts. It implements content.Store.
type PostStore struct {
	DB  *DB
	Now func() time.Time
}

var _ content.Store = (*PostStore)(nil)

type postRow struct {
	ID         int64  `db:"id"`
	Title      string `db:"title"`
	Content    string `db:"content"`
	Status     string `db:"status"`
	CreatedAt  int64  `db:"created_at"`
	ModifiedAt int64  `db:"modified_at"`
}

func (r postRow) post() content.Post {
	return content.Post{
		ID:       r.ID,
		Title:    r.Title,
		Content:  r.Content,
		Status:   r.Status,
		Created:  fromUnix(r.CreatedAt),
		Modified: fromUnix(r.ModifiedAt),
	}
}

func (s *PostStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *PostStore) Get(ctx context.Context, id int64) (content.Post, error) {
	var row postRow
	err := s.DB.GetContext(ctx, &row, s.DB.Rebind(`
		SELECT id, title, content, status, created_at, modified_at FROM posts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Post{}, content.ErrNotFound
	}
	if err != nil {
		return content.Post{}, err
	}
	return row.post(), nil
}

func (s *PostStore) List(ctx context.Context) ([]content.Post, error) {
	var rows []postRow
	if err := s.DB.SelectContext(ctx, &rows, `
		SELECT id, title, content, status, created_at, modified_at FROM posts ORDER BY id`); err != nil {
		return nil, err
	}
	out := make([]content.Post, len(rows))
	for i, r := range rows {
		out[i] = r.post()
	}
	return out, nil
}

func (s *PostStore) Save(ctx context.Context, p content.Post) (content.Post, error) {
	now := s.now().UTC().Truncate(time.Second)
	if p.Status == "" {
		p.Status = content.StatusPublish
	}
	p.Modified = now
	if p.ID == 0 {
		p.Created = now
		err := s.DB.QueryRowxContext(ctx, s.DB.Rebind(`
			INSERT INTO posts (title, content, status, created_at, modified_at)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`),
			p.Title, p.Content, p.Status, toUnix(p.Created), toUnix(p.Modified)).Scan(&p.ID)
		return p, err
	}
	res, err := s.DB.ExecContext(ctx, s.DB.Rebind(`
		UPDATE posts SET title = ?, content = ?, status = ?, modified_at = ? WHERE id = ?`),
		p.Title, p.Content, p.Status, toUnix(p.Modified), p.ID)
	if err != nil {
		return content.Post{}, err
	}
	if err := expectRow(res, content.ErrNotFound); err != nil {
		return content.Post{}, err
	}
	return s.Get(ctx, p.ID)
}

func (s *PostStore) Delete(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, s.DB.Rebind(`DELETE FROM posts WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectRow(res, content.ErrNotFound)
}
