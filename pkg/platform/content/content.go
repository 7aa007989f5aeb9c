// Package content is the page/post collaborator: the documents that embed
// tool links.
package content

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mind-engage/lti-platform/pkg/platform/lti"
)

var ErrNotFound = errors.New("content: post not found")

// Post statuses.
const (
	StatusPublish = "publish"
	StatusDraft   = "draft"
	StatusPrivate = "private"
)

// Post is one page of content.
type Post struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Status   string    `json:"status"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// CanRead reports whether u may view p. Published posts are public; anything
// else needs a user who can manage the site.
func CanRead(p Post, u lti.User) bool {
	return p.Status == StatusPublish || u.CanManage
}

// Store loads and saves posts.
type Store interface {
	Get(ctx context.Context, id int64) (Post, error)
	List(ctx context.Context) ([]Post, error)
	// Save inserts p when p.ID is zero and returns the stored post.
	Save(ctx context.Context, p Post) (Post, error)
	Delete(ctx context.Context, id int64) error
}

// MemoryStore keeps posts in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	posts  map[int64]Post
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{posts: map[int64]Post{}, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id int64) (Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, p Post) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if p.Status == "" {
		p.Status = StatusPublish
	}
	if p.ID == 0 {
		m.nextID++
		p.ID = m.nextID
		p.Created = now
	} else if old, ok := m.posts[p.ID]; ok {
		p.Created = old.Created
	} else {
		return Post{}, ErrNotFound
	}
	p.Modified = now
	m.posts[p.ID] = p
	return p, nil
}

func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return ErrNotFound
	}
	delete(m.posts, id)
	return nil
}
