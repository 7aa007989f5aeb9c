// pkg/platform/public/server.go
package public

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/content"
	"github.com/mind-engage/lti-platform/pkg/platform/lti"
	"github.com/mind-engage/lti-platform/pkg/platform/lti/deeplinking"
	"github.com/mind-engage/lti-platform/pkg/platform/shortcode"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

/*
Public endpoints of the platform.

Every request carrying the ?lti-platform flag is answered here. The first
matching sub-action wins:

	tools          HTML fragment listing enabled tools
	usecontentitem JSON {"useContentItem": bool} for &tool=
	keys           platform JWKS
	auth           LTI 1.3 authentication (id_token) endpoint
	storagejs      platform storage helper script
	embed          page wrapping a launch in an iframe (&post=&id=)
	content        content-item / deep-linking response (&tool=)
	deeplink       content-item selection launch (&post=&tool=)
	post           resource link launch (&post=&id=)
*/

const (
	launchErrorTitle   = "LTI Tool launch error"
	launchErrorMessage = "Sorry, the LTI tool could not be launched."
	noToolsMessage     = "There are no enabled LTI tools defined."
)

// Server serves the ?lti-platform endpoints and rendered posts.
type Server struct {
	Settings  *config.Provider
	Tools     *tool.Registry
	Posts     content.Store
	Builder   *lti.Builder
	Platform  *lti.Platform
	Auth      *lti.AuthorizeServer
	JWKS      http.Handler
	StorageJS http.Handler
	DeepLinks *deeplinking.Server
	Renderer  *shortcode.Renderer
	// CurrentUser returns the signed-in user; ok=false for anonymous visitors.
	CurrentUser func(*http.Request) (lti.User, bool)
	Logger      *zap.Logger
}

func (s *Server) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) user(r *http.Request) lti.User {
	if s.CurrentUser == nil {
		return lti.User{}
	}
	u, ok := s.CurrentUser(r)
	if !ok {
		return lti.User{}
	}
	return u
}

// Flagged reports whether r carries the ?lti-platform flag.
func Flagged(r *http.Request) bool {
	_, ok := r.URL.Query()[shortcode.Tag]
	return ok
}

// Middleware answers flagged requests and hands everything else to next.
func (s *Server) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Flagged(r) {
			s.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	has := func(k string) bool {
		_, ok := q[k]
		return ok
	}

	switch {
	case !has(shortcode.Tag):
		http.NotFound(w, r)
	case has("tools"):
		s.toolsList(w, r)
	case has("usecontentitem"):
		s.useContentItem(w, r)
	case has("keys"):
		s.serve(s.JWKS, w, r)
	case has("auth"):
		if s.Auth == nil {
			http.NotFound(w, r)
			return
		}
		s.Auth.Handler().ServeHTTP(w, r)
	case has("storagejs"):
		if !s.Settings.Get().OfferStorage {
			http.NotFound(w, r)
			return
		}
		s.serve(s.StorageJS, w, r)
	case has("embed"):
		s.embed(w, r)
	case has("content"):
		s.serve(s.DeepLinks, w, r)
	case has("deeplink"):
		s.launch(w, r, true)
	case has("post"):
		s.launch(w, r, false)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serve(h http.Handler, w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h.ServeHTTP(w, r)
}

// ---------- launches ----------

func (s *Server) launch(w http.ResponseWriter, r *http.Request, deepLink bool) {
	ctx := r.Context()
	user := s.user(r)
	req, err := s.prepare(ctx, r.URL.Query(), user, deepLink)
	if err != nil {
		s.launchError(w, err)
		return
	}
	msg, err := s.Builder.Build(req)
	if err != nil {
		s.launchError(w, err)
		return
	}
	if err := s.Platform.Send(ctx, w, r, msg, user); err != nil {
		s.log().Error("lti send failed", zap.String("tool", msg.Tool.Code), zap.Error(err))
		writeErrorPage(w, http.StatusInternalServerError, "")
		return
	}
	// LTI 1.3 launches are recorded by the auth endpoint once the id_token is issued.
	if msg.Resolution.Version == tool.V1_0 {
		s.touch(ctx, msg.Tool)
	}
}

// prepare resolves the post, link and tool of a launch request. Reasons are
// checked in a fixed order so the first problem is the one reported.
func (s *Server) prepare(ctx context.Context, q url.Values, user lti.User, deepLink bool) (lti.Request, error) {
	debug := s.Settings.Get().Debug
	fail := func(reason string, toolDebug bool) error {
		return &lti.LaunchError{Reason: reason, Debug: debug || toolDebug}
	}

	post, ok := s.readablePost(ctx, q.Get("post"), user)
	if !ok {
		return lti.Request{}, fail(lti.ReasonInvalidPost, false)
	}

	var (
		link      lti.LinkAttrs
		duplicate bool
	)
	if !deepLink {
		id := strings.TrimSpace(q.Get("id"))
		if id == "" {
			return lti.Request{}, fail(lti.ReasonMissingID, false)
		}
		sc, err := shortcode.FindLink(post.Content, id)
		duplicate = errors.Is(err, shortcode.ErrDuplicateID)
		if (err != nil && !duplicate) || sc.Attr("tool") == "" {
			return lti.Request{}, fail(lti.ReasonNoTool, false)
		}
		link = sc.LinkAttrs()
	} else {
		link.Tool = strings.TrimSpace(q.Get("tool"))
		if link.Tool == "" {
			return lti.Request{}, fail(lti.ReasonMissingTool, false)
		}
	}

	t, err := s.Tools.FromCode(ctx, link.Tool)
	if err != nil || !t.Enabled {
		if err != nil && !errors.Is(err, tool.ErrNotFound) {
			s.log().Error("tool lookup failed", zap.String("tool", link.Tool), zap.Error(err))
		}
		return lti.Request{}, fail(lti.ReasonToolNotFound, false)
	}
	if duplicate {
		return lti.Request{}, fail(lti.ReasonDuplicateID, t.DebugMode)
	}
	return lti.Request{
		Tool:     t,
		Context:  lti.Context{PostID: post.ID, Title: post.Title},
		Link:     link,
		User:     user,
		DeepLink: deepLink,
	}, nil
}

func (s *Server) readablePost(ctx context.Context, raw string, user lti.User) (content.Post, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 || s.Posts == nil {
		return content.Post{}, false
	}
	p, err := s.Posts.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) {
			s.log().Error("post lookup failed", zap.Int64("post", id), zap.Error(err))
		}
		return content.Post{}, false
	}
	if !content.CanRead(p, user) {
		return content.Post{}, false
	}
	return p, true
}

// touch records a launch against the tool; failures are logged only.
func (s *Server) touch(ctx context.Context, t *tool.Tool) {
	if _, err := s.Tools.TouchLastAccess(ctx, t); err != nil {
		s.log().Warn("last access not recorded", zap.String("tool", t.Code), zap.Error(err))
	}
}

// TouchLastAccess suits lti.AuthorizeServer.OnSent.
func (s *Server) TouchLastAccess(ctx context.Context, t *tool.Tool) {
	s.touch(ctx, t)
}

func (s *Server) launchError(w http.ResponseWriter, err error) {
	var le *lti.LaunchError
	if !errors.As(err, &le) {
		s.log().Error("launch failed", zap.Error(err))
		writeErrorPage(w, http.StatusInternalServerError, "")
		return
	}
	s.log().Info("launch refused", zap.String("reason", le.Reason))
	reason := ""
	if le.Debug {
		reason = le.Reason
	}
	writeErrorPage(w, http.StatusBadRequest, reason)
}

var errorPageTpl = template.Must(template.New("error").Parse(`<html>
  <head>
    <title>{{.Title}}</title>
  </head>
  <body>
    <p><strong>{{.Message}}</strong></p>
  </body>
</html>
`))

// launchMessage is the user-facing failure text, with the reason appended
// when it may be shown.
func launchMessage(reason string) template.HTML {
	msg := html.EscapeString(launchErrorMessage)
	if reason != "" {
		msg += " <em>[" + html.EscapeString(reason) + "]</em>"
	}
	return template.HTML(msg)
}

func writeErrorPage(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = errorPageTpl.Execute(w, struct {
		Title   string
		Message template.HTML
	}{launchErrorTitle, launchMessage(reason)})
}

// ---------- embed ----------

var embedPageTpl = template.Must(template.New("embed").Parse(`<html>
  <head>
    <title>{{.Title}}</title>
  </head>
  <body>
    <div id="primary" class="content-area">
      <div id="content" class="site-content" role="main">
{{- if .Src}}
        <iframe style="{{.Style}}" class="" src="{{.Src}}" allowfullscreen></iframe>
{{- else}}
        <p><strong>{{.Message}}</strong></p>
{{- end}}
      </div>
    </div>
  </body>
</html>
`))

type embedPage struct {
	Title   string
	Src     string
	Style   template.CSS
	Message template.HTML
}

func (s *Server) embed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	settings := s.Settings.Get()
	page := embedPage{Title: settings.SiteName}
	status := http.StatusOK

	sc, t, err := s.embedLink(ctx, q, s.user(r))
	if err != nil {
		var le *lti.LaunchError
		reason := ""
		if errors.As(err, &le) && le.Debug {
			reason = le.Reason
		}
		page.Message = launchMessage(reason)
		status = http.StatusBadRequest
	} else {
		width, height := shortcode.EmbedSize(sc, t)
		page.Src = shortcode.LaunchURL(settings, mustPostID(q), sc.Attr("id"))
		page.Style = template.CSS("border: none; overflow: scroll; width: " + width + "; height: " + height + ";")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := embedPageTpl.Execute(w, page); err != nil {
		s.log().Warn("embed page", zap.Error(err))
	}
}

func (s *Server) embedLink(ctx context.Context, q url.Values, user lti.User) (shortcode.Shortcode, *tool.Tool, error) {
	debug := s.Settings.Get().Debug
	fail := func(reason string, toolDebug bool) error {
		return &lti.LaunchError{Reason: reason, Debug: debug || toolDebug}
	}
	post, ok := s.readablePost(ctx, q.Get("post"), user)
	if !ok {
		return shortcode.Shortcode{}, nil, fail(lti.ReasonInvalidPost, false)
	}
	id := strings.TrimSpace(q.Get("id"))
	if id == "" {
		return shortcode.Shortcode{}, nil, fail(lti.ReasonMissingID, false)
	}
	sc, err := shortcode.FindLink(post.Content, id)
	duplicate := errors.Is(err, shortcode.ErrDuplicateID)
	if (err != nil && !duplicate) || sc.Attr("tool") == "" {
		return shortcode.Shortcode{}, nil, fail(lti.ReasonNoTool, false)
	}
	t, err := s.Tools.FromCode(ctx, sc.Attr("tool"))
	if err != nil || !t.Enabled {
		return shortcode.Shortcode{}, nil, fail(lti.ReasonToolNotFound, false)
	}
	if duplicate {
		return shortcode.Shortcode{}, nil, fail(lti.ReasonDuplicateID, t.DebugMode)
	}
	return sc, t, nil
}

func mustPostID(q url.Values) int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(q.Get("post")), 10, 64)
	return id
}

// ---------- editor helpers ----------

var toolsListTpl = template.Must(template.New("tools").Parse(`<div class="lti-platform-modal">
  <div class="lti-platform-modal-content">
    <h2>LTI Tool</h2>
    <p>
{{- if .Tools}}
      Select the LTI tool you want to add a link for:
{{- range .Tools}}<br>
      &nbsp;&nbsp;<input type="radio" name="tool" class="lti-platform-tool" value="{{.Code}}" toolname="{{.Name}}">&nbsp;{{.Name}}
{{- end}}
{{- else}}
      {{.Empty}}
{{- end}}
    </p>
    <p>
      <button class="button button-primary" id="lti-platform-select" disabled>Select</button>
      <button class="button" id="lti-platform-cancel">Cancel</button>
    </p>
  </div>
</div>
`))

// EnabledTools lists enabled tools of both scopes, one per code, ordered by
// code. A network tool replaces a site tool with the same code.
func (s *Server) EnabledTools(ctx context.Context) ([]*tool.Tool, error) {
	all, err := s.Tools.List(ctx, tool.Filter{Statuses: []tool.Status{tool.StatusPublish}})
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]*tool.Tool, len(all))
	for _, t := range all {
		if prev, ok := byCode[t.Code]; ok && prev.Scope == tool.ScopeNetwork {
			continue
		}
		byCode[t.Code] = t
	}
	out := make([]*tool.Tool, 0, len(byCode))
	for _, t := range byCode {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Server) toolsList(w http.ResponseWriter, r *http.Request) {
	tools, err := s.EnabledTools(r.Context())
	if err != nil {
		s.log().Error("list tools", zap.Error(err))
		http.Error(w, "unable to list tools", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = toolsListTpl.Execute(w, struct {
		Tools []*tool.Tool
		Empty string
	}{tools, noToolsMessage})
}

func (s *Server) useContentItem(w http.ResponseWriter, r *http.Request) {
	use := false
	if code := strings.TrimSpace(r.URL.Query().Get("tool")); code != "" {
		if t, err := s.Tools.FromCode(r.Context(), code); err == nil {
			use = t.UseContentItem
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"useContentItem": use})
}

// ---------- posts ----------

var postPageTpl = template.Must(template.New("post").Parse(`<html>
  <head>
    <title>{{.Title}}</title>
{{- if .Storage}}
    <script src="{{.Storage}}"></script>
{{- end}}
  </head>
  <body>
    <article>
      <h1>{{.Title}}</h1>
      <p>{{.Body}}</p>
    </article>
  </body>
</html>
`))

// RenderPost handles GET /posts/{id}: the post content with its tool links
// rendered.
func (s *Server) RenderPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := s.readablePost(ctx, chi.URLParam(r, "id"), s.user(r))
	if !ok {
		http.NotFound(w, r)
		return
	}
	settings := s.Settings.Get()
	storage := ""
	if settings.OfferStorage {
		storage = settings.Issuer() + "/?" + shortcode.Tag + "&storagejs"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := postPageTpl.Execute(w, struct {
		Title   string
		Storage string
		Body    template.HTML
	}{p.Title, storage, template.HTML(s.Renderer.RenderContent(ctx, p.ID, p.Content))})
	if err != nil {
		s.log().Warn("post page", zap.Int64("post", p.ID), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
