package public_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/content"
	"github.com/mind-engage/lti-platform/pkg/platform/lti"
	"github.com/mind-engage/lti-platform/pkg/platform/public"
	"github.com/mind-engage/lti-platform/pkg/platform/session"
	"github.com/mind-engage/lti-platform/pkg/platform/shortcode"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

type fixture struct {
	settings *config.Provider
	registry *tool.Registry
	posts    *content.MemoryStore
	srv      *public.Server
	user     lti.User
	signedIn bool
}

func newFixture(t *testing.T, debug bool) *fixture {
	t.Helper()
	provider := config.NewProvider(config.Settings{
		Debug:             debug,
		SiteURL:           "https://lms.example.org/",
		SiteName:          "Example LMS",
		ProductFamilyCode: "lti-platform",
		ProductVersion:    "1.0",
	})
	f := &fixture{
		settings: provider,
		registry: tool.NewRegistry(tool.NewMemoryStore(), provider, nil),
		posts:    content.NewMemoryStore(),
		user:     lti.User{ID: "7", Login: "stu", Email: "stu@example.org"},
	}
	f.srv = &public.Server{
		Settings:  provider,
		Tools:     f.registry,
		Posts:     f.posts,
		Builder:   &lti.Builder{Settings: provider},
		Platform:  &lti.Platform{Settings: provider, States: &lti.LoginStates{Store: session.NewMemoryStore()}},
		JWKS:      &lti.JWKSHandler{Provider: lti.NewKeySource(provider)},
		StorageJS: lti.StorageJSHandler{},
		Renderer:  &shortcode.Renderer{Tools: f.registry, Settings: provider},
		CurrentUser: func(*http.Request) (lti.User, bool) {
			return f.user, f.signedIn
		},
	}
	return f
}

func (f *fixture) saveTool(t *testing.T, code, name string, enabled bool, edit ...func(*tool.Tool)) *tool.Tool {
	t.Helper()
	tl := &tool.Tool{
		Scope:      tool.ScopeSite,
		Code:       code,
		Name:       name,
		Enabled:    enabled,
		MessageURL: "https://tool.example.com/lti",
		Key:        "key",
		Secret:     "secret",
		Settings:   map[string]string{tool.SettingSendUserID: "true"},
	}
	for _, fn := range edit {
		fn(tl)
	}
	res, err := f.registry.Save(context.Background(), tl)
	require.NoError(t, err)
	return res.Tool
}

func (f *fixture) savePost(t *testing.T, body, status string) content.Post {
	t.Helper()
	p, err := f.posts.Save(context.Background(), content.Post{Title: "Week one", Content: body, Status: status})
	require.NoError(t, err)
	return p
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestMiddlewarePassesUnflaggedRequests(t *testing.T) {
	f := newFixture(t, false)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := f.srv.Middleware(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?tools", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lti-platform&tools", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, f.get("/?lti-platform").Code)
}

func TestToolsList(t *testing.T) {
	f := newFixture(t, false)

	rec := f.get("/?lti-platform&tools")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "There are no enabled LTI tools defined.")

	f.saveTool(t, "beta", "Beta Tool", true)
	f.saveTool(t, "alpha", "Alpha Tool", true)
	f.saveTool(t, "off", "Off Tool", false)

	body := f.get("/?lti-platform&tools").Body.String()
	assert.Contains(t, body, `value="alpha" toolname="Alpha Tool"`)
	assert.NotContains(t, body, "Off Tool")
	assert.NotContains(t, body, "There are no enabled")
	assert.Less(t, strings.Index(body, "alpha"), strings.Index(body, "beta"))
	assert.Contains(t, body, `id="lti-platform-select" disabled`)
}

func TestUseContentItem(t *testing.T) {
	f := newFixture(t, false)
	f.saveTool(t, "picker", "Picker", true, func(tl *tool.Tool) { tl.UseContentItem = true })
	f.saveTool(t, "plain", "Plain", true)

	rec := f.get("/?lti-platform&usecontentitem&tool=picker")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"useContentItem":true}`, rec.Body.String())
	assert.JSONEq(t, `{"useContentItem":false}`, f.get("/?lti-platform&usecontentitem&tool=plain").Body.String())
	assert.JSONEq(t, `{"useContentItem":false}`, f.get("/?lti-platform&usecontentitem&tool=ghost").Body.String())
}

func TestLaunchLTI10(t *testing.T) {
	f := newFixture(t, false)
	quiz := f.saveTool(t, "quiz", "Quiz", true)
	p := f.savePost(t, `Intro [lti-platform tool=quiz id=l1 custom="a=1"]Take it[/lti-platform]`, content.StatusPublish)
	f.signedIn = true

	rec := f.get("/?lti-platform&post=" + itoa(p.ID) + "&id=l1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, `action="https://tool.example.com/lti"`)
	assert.Contains(t, body, `name="resource_link_id" value="`+itoa(p.ID)+`-l1"`)
	assert.Contains(t, body, `name="resource_link_title" value="Take it"`)
	assert.Contains(t, body, `name="context_title" value="Week one"`)
	assert.Contains(t, body, `name="custom_a" value="1"`)
	assert.Contains(t, body, `name="user_id" value="7"`)
	assert.Contains(t, body, `name="oauth_signature"`)

	got, err := f.registry.Get(context.Background(), quiz.ID)
	require.NoError(t, err)
	assert.False(t, got.LastAccess.IsZero(), "launch records last access")
}

func TestDeepLinkLaunch(t *testing.T) {
	f := newFixture(t, false)
	f.saveTool(t, "picker", "Picker", true, func(tl *tool.Tool) {
		tl.UseContentItem = true
		tl.ContentItemURL = "https://tool.example.com/select"
	})
	p := f.savePost(t, "draft text", content.StatusDraft)
	f.user.CanManage = true
	f.signedIn = true

	rec := f.get("/?lti-platform&deeplink&post=" + itoa(p.ID) + "&tool=picker")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, `action="https://tool.example.com/select"`)
	assert.Contains(t, body, `name="lti_message_type" value="ContentItemSelectionRequest"`)
	assert.Contains(t, body, `name="accept_multiple" value="false"`)
	assert.NotContains(t, body, `name="resource_link_id"`)
}

func TestLaunchReasons(t *testing.T) {
	f := newFixture(t, true)
	f.saveTool(t, "quiz", "Quiz", true)
	f.saveTool(t, "off", "Off", false)
	p := f.savePost(t, strings.Join([]string{
		`[lti-platform tool=quiz id=ok]A[/lti-platform]`,
		`[lti-platform tool=ghost id=gone]B[/lti-platform]`,
		`[lti-platform tool=off id=disabled]C[/lti-platform]`,
		`[lti-platform tool=quiz id=twice]D[/lti-platform]`,
		`[lti-platform tool=quiz id=twice]E[/lti-platform]`,
		`[lti-platform tool=quiz id=badtarget target=sideways]F[/lti-platform]`,
		`[lti-platform tool=quiz id=badurl url="https://evil.example.com/"]G[/lti-platform]`,
		`[lti-platform id=notool]H[/lti-platform]`,
	}, "\n"), content.StatusPublish)
	draft := f.savePost(t, `[lti-platform tool=quiz id=ok]A[/lti-platform]`, content.StatusDraft)
	post := "&post=" + itoa(p.ID)

	cases := []struct {
		name   string
		query  string
		reason string
	}{
		{"unknown post", "&post=999&id=ok", lti.ReasonInvalidPost},
		{"unreadable post", "&post=" + itoa(draft.ID) + "&id=ok", lti.ReasonInvalidPost},
		{"bad post id", "&post=abc&id=ok", lti.ReasonInvalidPost},
		{"missing id", post, lti.ReasonMissingID},
		{"unknown id", post + "&id=nope", lti.ReasonNoTool},
		{"link without tool", post + "&id=notool", lti.ReasonNoTool},
		{"unknown tool", post + "&id=gone", lti.ReasonToolNotFound},
		{"disabled tool", post + "&id=disabled", lti.ReasonToolNotFound},
		{"duplicate id", post + "&id=twice", lti.ReasonDuplicateID},
		{"bad target", post + "&id=badtarget", lti.ReasonInvalidTarget},
		{"foreign url", post + "&id=badurl", lti.ReasonInvalidURL},
		{"deeplink without tool", "&deeplink" + post, lti.ReasonMissingTool},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.get("/?lti-platform" + tc.query)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := rec.Body.String()
			assert.Contains(t, body, "<title>LTI Tool launch error</title>")
			assert.Contains(t, body, "Sorry, the LTI tool could not be launched. <em>["+tc.reason+"]</em>")
		})
	}
}

func TestLaunchReasonHiddenWithoutDebug(t *testing.T) {
	f := newFixture(t, false)
	f.saveTool(t, "quiz", "Quiz", true)
	f.saveTool(t, "loud", "Loud", true, func(tl *tool.Tool) { tl.DebugMode = true })
	p := f.savePost(t, `[lti-platform tool=quiz id=t target=sideways]x[/lti-platform]`+
		`[lti-platform tool=loud id=l target=sideways]y[/lti-platform]`, content.StatusPublish)

	body := f.get("/?lti-platform&post=" + itoa(p.ID) + "&id=t").Body.String()
	assert.Contains(t, body, "Sorry, the LTI tool could not be launched.")
	assert.NotContains(t, body, "<em>")

	body = f.get("/?lti-platform&post=" + itoa(p.ID) + "&id=l").Body.String()
	assert.Contains(t, body, "<em>["+lti.ReasonInvalidTarget+"]</em>", "tool debug mode shows the reason")
}

func TestEmbedPage(t *testing.T) {
	f := newFixture(t, true)
	f.saveTool(t, "quiz", "Quiz", true)
	p := f.savePost(t, `[lti-platform tool=quiz id=e1]x[/lti-platform][lti-platform tool=quiz id=e2 width=640]y[/lti-platform]`, content.StatusPublish)

	rec := f.get("/?lti-platform&embed&post=" + itoa(p.ID) + "&id=e1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `style="border: none; overflow: scroll; width: 100%; height: 400px;"`)
	assert.Contains(t, body, `src="https://lms.example.org/?lti-platform&amp;post=`+itoa(p.ID)+`&amp;id=e1"`)

	body = f.get("/?lti-platform&embed&post=" + itoa(p.ID) + "&id=e2").Body.String()
	assert.Contains(t, body, "width: 640px;")

	rec = f.get("/?lti-platform&embed&post=" + itoa(p.ID) + "&id=none")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "<em>["+lti.ReasonNoTool+"]</em>")
	assert.NotContains(t, rec.Body.String(), "<iframe")
}

func TestStorageScriptIsOptIn(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusNotFound, f.get("/?lti-platform&storagejs").Code)

	s := f.settings.Get()
	s.OfferStorage = true
	f.settings.Set(s)
	rec := f.get("/?lti-platform&storagejs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/javascript")
	assert.Contains(t, rec.Body.String(), "lti.put_data")
}

func TestKeysEndpoint(t *testing.T) {
	f := newFixture(t, false)
	rec := f.get("/?lti-platform&keys")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"keys":[]}`, rec.Body.String())
}

func TestRenderPost(t *testing.T) {
	f := newFixture(t, false)
	f.saveTool(t, "quiz", "Quiz", true)
	pub := f.savePost(t, `Read this. [lti-platform tool=quiz id=r1]Quiz time[/lti-platform]`, content.StatusPublish)
	draft := f.savePost(t, "hidden", content.StatusDraft)

	r := chi.NewRouter()
	r.Get("/posts/{id}", f.srv.RenderPost)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/"+itoa(pub.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>Week one</h1>")
	assert.Contains(t, body, `title="Launch quiz tool" target="_blank">Quiz time</a>`)
	assert.NotContains(t, body, "[lti-platform")
	assert.NotContains(t, body, "storagejs")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/"+itoa(draft.ID), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
