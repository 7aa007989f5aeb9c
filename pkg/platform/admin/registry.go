// pkg/platform/admin/registry.go
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/content"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

/*
Package admin exposes a JSON API to manage the tool registry and the posts
that embed tool links, and to inspect the platform settings.

Route prefix (suggested): /admin

	GET    /tools                 list (?status=all|publish|draft|trash &scope= &s= &orderby= &order= &offset= &limit=)
	POST   /tools                 create
	GET    /tools/{id}            read
	PUT    /tools/{id}            update
	DELETE /tools/{id}            delete permanently
	POST   /tools/{id}/{action}   enable | disable | trash | untrash | delete
	POST   /tools/bulk            {"action": ..., "ids": [...]}
	GET    /settings              platform settings, private key withheld
	POST   /settings/refresh      reload settings from their source
	GET    /posts                 list posts
	POST   /posts                 create
	GET    /posts/{id}            read
	PUT    /posts/{id}            update
	DELETE /posts/{id}            delete

All writes go through tool.Registry, which enforces code uniqueness and the
enable rule.
*/

// Actions accepted by the per-tool and bulk endpoints.
const (
	ActionEnable  = "enable"
	ActionDisable = "disable"
	ActionTrash   = "trash"
	ActionUntrash = "untrash"
	ActionDelete  = "delete"
)

// Notices reported for each action outcome.
var notices = map[string]struct{ ok, fail string }{
	ActionTrash:   {"Tool(s) moved to the Bin.", "An error occurred when moving tool(s) to the Bin."},
	ActionDelete:  {"Tool(s) deleted.", "An error occurred when deleting tool(s)."},
	ActionUntrash: {"Tool(s) restored.", "An error occurred when restoring tool(s)."},
	ActionEnable:  {"Tool(s) enabled.", "An error occurred when enabling tool(s)."},
	ActionDisable: {"Tool(s) disabled.", "An error occurred when disabling tool(s)."},
}

const (
	noticeCannotEnable = "Tools cannot be enabled if they are not fully configured for either LTI 1.0/1.1/1.2 or LTI 1.3, or no private key has been defined."
	noticeDuplicate    = "Another tool is already using the code"
	noticeSaveFailed   = "Unable to save the changes."
)

// API serves the admin endpoints.
type API struct {
	Tools    *tool.Registry
	Settings *config.Provider
	// Posts enables the /posts endpoints when set.
	Posts  content.Store
	Logger *zap.Logger
}

func (a *API) log() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// Routes returns an http.Handler with the admin endpoints.
// Mount it under something like: r.Mount("/admin", admin.Routes(api))
func Routes(a *API) http.Handler {
	r := chi.NewRouter()

	r.Get("/tools", a.listTools)
	r.Post("/tools", a.createTool)
	r.Post("/tools/bulk", a.bulk)
	r.Get("/tools/{id}", a.getTool)
	r.Put("/tools/{id}", a.updateTool)
	r.Delete("/tools/{id}", a.deleteTool)
	r.Post("/tools/{id}/{action}", a.toolAction)

	r.Get("/settings", a.getSettings)
	r.Post("/settings/refresh", a.refreshSettings)

	if a.Posts != nil {
		r.Get("/posts", a.listPosts)
		r.Post("/posts", a.createPost)
		r.Get("/posts/{id}", a.getPost)
		r.Put("/posts/{id}", a.updatePost)
		r.Delete("/posts/{id}", a.deletePost)
	}

	return r
}

/* ------------------------------- Tools ------------------------------------ */

func (a *API) listTools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := tool.Scope(strings.TrimSpace(q.Get("scope")))
	if scope != "" && !scope.Valid() {
		writeErr(w, http.StatusBadRequest, "scope must be site or network")
		return
	}
	all, err := a.Tools.List(r.Context(), tool.Filter{
		Scope:    scope,
		Statuses: []tool.Status{tool.StatusPublish, tool.StatusDraft, tool.StatusTrash},
	})
	if err != nil {
		a.log().Error("list tools", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "unable to list tools")
		return
	}

	var counts Counts
	for _, t := range all {
		switch {
		case t.Deleted:
			counts.Trash++
		case t.Enabled:
			counts.Publish++
		default:
			counts.Draft++
		}
	}
	counts.All = counts.Publish + counts.Draft

	status := strings.TrimSpace(q.Get("status"))
	if status == "" {
		status = "all"
	}
	keep, ok := statusFilter(status)
	if !ok {
		writeErr(w, http.StatusBadRequest, "status must be all, publish, draft or trash")
		return
	}
	search := strings.ToLower(strings.TrimSpace(q.Get("s")))
	items := make([]*tool.Tool, 0, len(all))
	for _, t := range all {
		if !keep(t) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Name), search) && !strings.Contains(t.Code, search) {
			continue
		}
		items = append(items, t)
	}
	if err := sortTools(items, q.Get("orderby"), q.Get("order")); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	total := len(items)
	offset, limit := parsePage(q, 0, 100)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	s := a.Settings.Get()
	views := make([]ToolView, 0, end-offset)
	for _, t := range items[offset:end] {
		views = append(views, viewOf(t, s))
	}
	writeJSON(w, http.StatusOK, ListResp{Items: views, Total: total, Counts: counts})
}

func (a *API) createTool(w http.ResponseWriter, r *http.Request) {
	var req ToolReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if msg := validateToolReq(req); msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	scope := tool.Scope(strings.TrimSpace(req.Scope))
	if !scope.Valid() {
		scope = tool.ScopeSite
	}
	t := tool.New(scope, a.Settings.Get())
	apply(t, req)
	a.save(w, r, t, http.StatusCreated)
}

func (a *API) getTool(w http.ResponseWriter, r *http.Request) {
	t, ok := a.loadTool(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t, a.Settings.Get()))
}

func (a *API) updateTool(w http.ResponseWriter, r *http.Request) {
	t, ok := a.loadTool(w, r)
	if !ok {
		return
	}
	var req ToolReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if msg := validateToolReq(req); msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	apply(t, req)
	a.save(w, r, t, http.StatusOK)
}

func (a *API) save(w http.ResponseWriter, r *http.Request, t *tool.Tool, status int) {
	res, err := a.Tools.Save(r.Context(), t)
	switch {
	case errors.Is(err, tool.ErrDuplicateCode):
		writeErr(w, http.StatusConflict, noticeDuplicate+": "+tool.NormalizeCode(t.Code))
		return
	case errors.Is(err, tool.ErrCodeRequired):
		writeErr(w, http.StatusBadRequest, "code is required")
		return
	case err != nil:
		a.log().Error("save tool", zap.String("code", t.Code), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, noticeSaveFailed)
		return
	}
	resp := SaveResp{Tool: viewOf(res.Tool, a.Settings.Get()), Downgraded: res.Downgraded}
	if res.Downgraded {
		resp.Notice = noticeCannotEnable
	}
	writeJSON(w, status, resp)
}

func (a *API) deleteTool(w http.ResponseWriter, r *http.Request) {
	id, ok := toolID(w, r)
	if !ok {
		return
	}
	if err := a.Tools.Delete(r.Context(), id); err != nil {
		a.actionError(w, ActionDelete, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) toolAction(w http.ResponseWriter, r *http.Request) {
	id, ok := toolID(w, r)
	if !ok {
		return
	}
	action := chi.URLParam(r, "action")
	if _, known := notices[action]; !known {
		writeErr(w, http.StatusNotFound, "unknown action: "+action)
		return
	}
	t, err := a.do(r, action, id)
	if err != nil {
		a.actionError(w, action, id, err)
		return
	}
	if t == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, SaveResp{Tool: viewOf(t, a.Settings.Get()), Notice: notices[action].ok})
}

func (a *API) bulk(w http.ResponseWriter, r *http.Request) {
	var req BulkReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	n, known := notices[req.Action]
	if !known {
		writeErr(w, http.StatusBadRequest, "unknown action: "+req.Action)
		return
	}
	if len(req.IDs) == 0 {
		writeErr(w, http.StatusBadRequest, "ids is required")
		return
	}

	resp := BulkResp{Action: req.Action, Notice: n.ok, Results: make([]BulkResult, 0, len(req.IDs))}
	denied, failed := false, false
	for _, id := range req.IDs {
		res := BulkResult{ID: id, OK: true}
		if _, err := a.do(r, req.Action, id); err != nil {
			res.OK = false
			res.Error = err.Error()
			if errors.Is(err, tool.ErrCannotEnable) {
				denied = true
			} else {
				failed = true
			}
		}
		resp.Results = append(resp.Results, res)
	}
	switch {
	case failed:
		resp.Notice = n.fail
	case denied:
		resp.Notice = noticeCannotEnable
	}
	writeJSON(w, http.StatusOK, resp)
}

// do runs one action. Delete returns a nil tool.
func (a *API) do(r *http.Request, action string, id int64) (*tool.Tool, error) {
	ctx := r.Context()
	switch action {
	case ActionEnable:
		return a.Tools.Enable(ctx, id)
	case ActionDisable:
		return a.Tools.Disable(ctx, id)
	case ActionTrash:
		return a.Tools.Trash(ctx, id)
	case ActionUntrash:
		return a.Tools.Restore(ctx, id)
	case ActionDelete:
		return nil, a.Tools.Delete(ctx, id)
	}
	return nil, errors.New("admin: unknown action " + action)
}

func (a *API) actionError(w http.ResponseWriter, action string, id int64, err error) {
	switch {
	case errors.Is(err, tool.ErrNotFound):
		writeErr(w, http.StatusNotFound, "tool not found")
	case errors.Is(err, tool.ErrCannotEnable):
		writeErr(w, http.StatusUnprocessableEntity, noticeCannotEnable)
	case errors.Is(err, tool.ErrDuplicateCode):
		writeErr(w, http.StatusConflict, noticeDuplicate)
	default:
		a.log().Error("tool action", zap.String("action", action), zap.Int64("id", id), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, notices[action].fail)
	}
}

func (a *API) loadTool(w http.ResponseWriter, r *http.Request) (*tool.Tool, bool) {
	id, ok := toolID(w, r)
	if !ok {
		return nil, false
	}
	t, err := a.Tools.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, tool.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "tool not found")
			return nil, false
		}
		a.log().Error("load tool", zap.Int64("id", id), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "unable to load tool")
		return nil, false
	}
	return t, true
}

/* ------------------------------ Settings ---------------------------------- */

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsView(a.Settings.Get()))
}

// refreshSettings reloads the platform settings from their source.
func (a *API) refreshSettings(w http.ResponseWriter, r *http.Request) {
	if err := a.Settings.Refresh(); err != nil {
		a.log().Error("settings refresh failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "unable to reload settings")
		return
	}
	a.log().Info("settings refreshed")
	writeJSON(w, http.StatusOK, settingsView(a.Settings.Get()))
}

/* ------------------------------ Validation -------------------------------- */

func validateToolReq(req ToolReq) string {
	if strings.TrimSpace(req.Code) == "" {
		return "code is required"
	}
	if s := strings.TrimSpace(req.Scope); s != "" && !tool.Scope(s).Valid() {
		return "scope must be site or network"
	}
	for name, u := range map[string]string{
		"message_url":        req.MessageURL,
		"content_item_url":   req.ContentItemURL,
		"initiate_login_url": req.InitiateLoginURL,
		"jku":                req.JKU,
	} {
		if strings.TrimSpace(u) != "" && !isHTTPURL(u) {
			return name + " must be http(s) URL"
		}
	}
	for _, u := range req.RedirectionURIs {
		if strings.TrimSpace(u) != "" && !isHTTPURL(strings.TrimSuffix(strings.TrimSpace(u), "*")) {
			return "redirection_uris must contain only http(s) URLs"
		}
	}
	return ""
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// statusFilter maps a list view to a predicate. "all" excludes the bin.
func statusFilter(status string) (func(*tool.Tool) bool, bool) {
	switch tool.Status(status) {
	case "all":
		return func(t *tool.Tool) bool { return !t.Deleted }, true
	case tool.StatusPublish:
		return func(t *tool.Tool) bool { return !t.Deleted && t.Enabled }, true
	case tool.StatusDraft:
		return func(t *tool.Tool) bool { return !t.Deleted && !t.Enabled }, true
	case tool.StatusTrash:
		return func(t *tool.Tool) bool { return t.Deleted }, true
	}
	return nil, false
}

// sortTools orders by the named column, ties broken by code.
func sortTools(items []*tool.Tool, orderBy, order string) error {
	var less func(a, b *tool.Tool) bool
	switch strings.TrimSpace(orderBy) {
	case "", "name":
		less = func(a, b *tool.Tool) bool { return a.Name < b.Name }
	case "code":
		less = func(a, b *tool.Tool) bool { return a.Code < b.Code }
	case "enabled":
		less = func(a, b *tool.Tool) bool { return !a.Enabled && b.Enabled }
	case "debugMode":
		less = func(a, b *tool.Tool) bool { return !a.DebugMode && b.DebugMode }
	case "lastAccess":
		less = func(a, b *tool.Tool) bool { return a.LastAccess.Before(b.LastAccess) }
	case "created":
		less = func(a, b *tool.Tool) bool { return a.Created.Before(b.Created) }
	case "modified":
		less = func(a, b *tool.Tool) bool { return a.Updated.Before(b.Updated) }
	default:
		return errors.New("unknown orderby: " + orderBy)
	}
	desc := strings.EqualFold(strings.TrimSpace(order), "desc")
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if desc {
			a, b = b, a
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return items[i].Code < items[j].Code
	})
	return nil
}

/* ------------------------------ Utilities --------------------------------- */

func toolID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, "invalid tool id")
		return 0, false
	}
	return id, true
}

func parsePage(q url.Values, defOffset, defLimit int) (offset, limit int) {
	offset = defOffset
	limit = defLimit

	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	return
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errResp struct {
	Error string `json:"error"`
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}

// trimAll trims whitespace from every string in the slice and removes empties.
func trimAll(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, s := range xs {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
