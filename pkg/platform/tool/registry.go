// pkg/platform/tool/registry.go
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
)

/*
Registry is the only writer of tool documents. It owns three rules:

  - codes are unique among non-deleted tools of one scope, checked before
    any write so a rejected save leaves both tools untouched;
  - a tool that cannot be enabled is saved disabled instead;
  - an enabled network tool shadows a site tool with the same code.

Persistence is delegated to a Store working on Records.
*/

var (
	// ErrNotFound is returned when no tool matches the lookup.
	ErrNotFound = errors.New("tool: not found")
	// ErrDuplicateCode is returned when another non-deleted tool in the same
	// scope already uses the code.
	ErrDuplicateCode = errors.New("tool: code already in use")
	// ErrCodeRequired is returned when saving a tool without a code.
	ErrCodeRequired = errors.New("tool: code is required")
	// ErrCannotEnable is returned by Enable when the tool lacks launch configuration.
	ErrCannotEnable = errors.New("tool: missing launch configuration")
	// ErrKeepData is returned by Purge when the uninstall setting is off.
	ErrKeepData = errors.New("tool: uninstall setting keeps data")
)

// Filter narrows List results. A zero Scope matches both scopes; empty
// Statuses matches publish and draft.
type Filter struct {
	Scope    Scope
	Statuses []Status
}

// Store persists tool Records.
type Store interface {
	Get(ctx context.Context, id int64) (Record, error)
	// GetBySlug returns the non-trash record with the slug in scope.
	GetBySlug(ctx context.Context, scope Scope, slug string) (Record, error)
	List(ctx context.Context, f Filter) ([]Record, error)
	// Insert stores r and returns the assigned id.
	Insert(ctx context.Context, r Record) (int64, error)
	Update(ctx context.Context, r Record) error
	Delete(ctx context.Context, id int64) error
	// TouchLastAccess stamps day on the stored document without touching
	// its status or other settings. It reports whether it wrote.
	TouchLastAccess(ctx context.Context, id int64, day time.Time) (bool, error)
}

// SaveResult describes what Save wrote.
type SaveResult struct {
	Tool       *Tool
	Created    bool
	Downgraded bool // requested enabled but saved disabled
}

// Registry looks up and saves tools.
type Registry struct {
	Store    Store
	Settings *config.Provider
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewRegistry wires a registry with a no-op logger when log is nil.
func NewRegistry(store Store, settings *config.Provider, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{Store: store, Settings: settings, Logger: log}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Registry) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Get loads a tool by id.
func (r *Registry) Get(ctx context.Context, id int64) (*Tool, error) {
	rec, err := r.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return decode(rec)
}

// FromCode finds the tool used for launches with code. The network tool
// wins when it exists and is enabled; otherwise the site tool is returned.
func (r *Registry) FromCode(ctx context.Context, code string) (*Tool, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrNotFound
	}
	if rec, err := r.Store.GetBySlug(ctx, ScopeNetwork, code); err == nil {
		t, derr := decode(rec)
		if derr == nil && t.Enabled {
			return t, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	rec, err := r.Store.GetBySlug(ctx, ScopeSite, code)
	if err != nil {
		return nil, err
	}
	return decode(rec)
}

// List returns tools matching f, ordered by name.
func (r *Registry) List(ctx context.Context, f Filter) ([]*Tool, error) {
	if len(f.Statuses) == 0 {
		f.Statuses = []Status{StatusPublish, StatusDraft}
	}
	recs, err := r.Store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]*Tool, 0, len(recs))
	for _, rec := range recs {
		t, err := decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// Save validates and writes t. t itself is never modified; the saved copy is
// returned in SaveResult.Tool.
func (r *Registry) Save(ctx context.Context, t *Tool) (SaveResult, error) {
	if t == nil {
		return SaveResult{}, errors.New("tool: nil tool")
	}
	cp := t.Clone()
	cp.Code = NormalizeCode(cp.Code)
	if cp.Code == "" {
		return SaveResult{}, ErrCodeRequired
	}
	if !cp.Scope.Valid() {
		cp.Scope = ScopeSite
	}
	if !cp.Deleted {
		if err := r.checkUnique(ctx, cp); err != nil {
			return SaveResult{}, err
		}
	}

	res := SaveResult{Tool: cp}
	if cp.Enabled && !CanBeEnabled(*cp, r.Settings.Get()) {
		cp.Enabled = false
		res.Downgraded = true
		r.log().Info("tool saved disabled: missing launch configuration", zap.String("code", cp.Code))
	}

	now := r.now().UTC()
	if cp.ID == 0 {
		cp.Created = now
	}
	cp.Updated = now
	rec, err := Encode(*cp)
	if err != nil {
		return SaveResult{}, err
	}
	if cp.ID == 0 {
		id, err := r.Store.Insert(ctx, rec)
		if err != nil {
			return SaveResult{}, err
		}
		cp.ID = id
		res.Created = true
	} else if err := r.Store.Update(ctx, rec); err != nil {
		return SaveResult{}, err
	}
	return res, nil
}

func (r *Registry) checkUnique(ctx context.Context, t *Tool) error {
	rec, err := r.Store.GetBySlug(ctx, t.Scope, t.Code)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case rec.ID != t.ID:
		return fmt.Errorf("%w: %q", ErrDuplicateCode, t.Code)
	}
	return nil
}

// Trash marks the tool deleted. A trashed tool releases its code.
func (r *Registry) Trash(ctx context.Context, id int64) (*Tool, error) {
	return r.mutate(ctx, id, func(t *Tool) error {
		t.Deleted = true
		return nil
	})
}

// Restore returns a trashed tool to disabled. It fails with ErrDuplicateCode
// when another tool has claimed the code in the meantime.
func (r *Registry) Restore(ctx context.Context, id int64) (*Tool, error) {
	return r.mutate(ctx, id, func(t *Tool) error {
		t.Deleted = false
		t.Enabled = false
		return nil
	})
}

// Enable marks the tool enabled or fails with ErrCannotEnable.
func (r *Registry) Enable(ctx context.Context, id int64) (*Tool, error) {
	return r.mutate(ctx, id, func(t *Tool) error {
		if !CanBeEnabled(*t, r.Settings.Get()) {
			return ErrCannotEnable
		}
		t.Enabled = true
		return nil
	})
}

// Disable marks the tool disabled.
func (r *Registry) Disable(ctx context.Context, id int64) (*Tool, error) {
	return r.mutate(ctx, id, func(t *Tool) error {
		t.Enabled = false
		return nil
	})
}

// Delete removes the tool document permanently.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	return r.Store.Delete(ctx, id)
}

// Purge permanently deletes every tool document in both scopes, trash
// included, and returns how many went. It refuses unless the uninstall
// setting is on.
func (r *Registry) Purge(ctx context.Context) (int, error) {
	if r.Settings == nil || !r.Settings.Get().Uninstall {
		return 0, ErrKeepData
	}
	recs, err := r.Store.List(ctx, Filter{Statuses: []Status{StatusPublish, StatusDraft, StatusTrash}})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		if err := r.Store.Delete(ctx, rec.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return n, err
		}
		n++
	}
	r.log().Info("tools purged", zap.Int("count", n))
	return n, nil
}

func (r *Registry) mutate(ctx context.Context, id int64, fn func(*Tool) error) (*Tool, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	res, err := r.Save(ctx, t)
	if err != nil {
		return nil, err
	}
	return res.Tool, nil
}

// TouchLastAccess records a launch. The document is written at most once
// per UTC day; it reports whether a write happened. Only the last-access
// day is written, so edits made since t was loaded survive.
func (r *Registry) TouchLastAccess(ctx context.Context, t *Tool) (bool, error) {
	today := Day(r.now())
	if !t.LastAccess.IsZero() && !Day(t.LastAccess).Before(today) {
		return false, nil
	}
	wrote, err := r.Store.TouchLastAccess(ctx, t.ID, today)
	if err != nil {
		return false, err
	}
	t.LastAccess = today
	return wrote, nil
}

func decode(rec Record) (*Tool, error) {
	t, err := Decode(rec)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
