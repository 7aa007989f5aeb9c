package admin_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/lti-platform/pkg/platform/admin"
	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/content"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

func newPostsHarness(t *testing.T) *harness {
	t.Helper()
	settings := config.NewProvider(config.Settings{SiteURL: "https://lms.example.org"})
	reg := tool.NewRegistry(tool.NewMemoryStore(), settings, nil)
	return &harness{
		registry: reg,
		settings: settings,
		h: admin.Routes(&admin.API{
			Tools:    reg,
			Settings: settings,
			Posts:    content.NewMemoryStore(),
		}),
	}
}

func TestPostsCRUD(t *testing.T) {
	h := newPostsHarness(t)

	rec := h.do(t, http.MethodPost, "/posts", admin.PostReq{
		Title:   " Week one ",
		Content: `Read [lti-platform tool=quiz id=a1]Quiz[/lti-platform] and [lti-platform tool=wiki id=b2]`,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[admin.PostView](t, rec)
	assert.Equal(t, "Week one", created.Title)
	assert.Equal(t, content.StatusPublish, created.Status)
	assert.Equal(t, []string{"a1", "b2"}, created.Links)

	rec = h.do(t, http.MethodPut, "/posts/"+strconv.FormatInt(created.ID, 10), admin.PostReq{Title: "Week 1", Content: "none", Status: "draft"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[admin.PostView](t, rec)
	assert.Equal(t, content.StatusDraft, updated.Status)
	assert.Empty(t, updated.Links)

	rec = h.do(t, http.MethodGet, "/posts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/posts/"+strconv.FormatInt(created.ID, 10), nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/posts/"+strconv.FormatInt(created.ID, 10), nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/posts/"+strconv.FormatInt(created.ID, 10), nil).Code)
}

func TestPostValidation(t *testing.T) {
	h := newPostsHarness(t)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/posts", admin.PostReq{Status: "archived"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/posts/abc", nil).Code)

	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostRoutesNeedStore(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/posts", nil).Code)
}

func TestSettingsRefresh(t *testing.T) {
	calls := 0
	settings, err := config.NewLoadingProvider(func() (config.Settings, error) {
		calls++
		if calls > 2 {
			return config.Settings{}, errors.New("boom")
		}
		return config.Settings{SiteURL: "https://lms.example.org", SiteName: "Load " + strconv.Itoa(calls)}, nil
	})
	require.NoError(t, err)
	h := admin.Routes(&admin.API{Tools: tool.NewRegistry(tool.NewMemoryStore(), settings, nil), Settings: settings})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/settings/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Load 2", decode[admin.SettingsView](t, rec).SiteName)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/settings/refresh", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Load 2", settings.Get().SiteName)
}
