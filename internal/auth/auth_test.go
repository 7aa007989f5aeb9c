package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/lti-platform/internal/auth"
	"github.com/mind-engage/lti-platform/pkg/platform/lti"
)

func accounts(t *testing.T) auth.Accounts {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return auth.Accounts{{
		ID:           "7",
		Login:        "jdoe",
		PasswordHash: string(h),
		FirstName:    "Jane",
		LastName:     "Doe",
		Email:        "jane@example.org",
		Roles:        []string{"editor"},
	}}
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := auth.CurrentUser(r)
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(u.ID + ":" + u.DisplayName))
	})
}

func TestIssueAndParse(t *testing.T) {
	a := auth.NewAuthService("k")
	tok, err := a.IssueJWT(lti.User{ID: "7", Login: "jdoe", Roles: []string{"editor"}})
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "7", c.User.ID)
	assert.Equal(t, []string{"editor"}, c.User.Roles)
	assert.Equal(t, "7", c.Subject)
}

func TestParseRejects(t *testing.T) {
	a := auth.NewAuthService("k")
	tok, err := a.IssueJWT(lti.User{ID: "7"})
	require.NoError(t, err)

	_, err = auth.NewAuthService("other").Parse(tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	expired := auth.NewAuthService("k")
	expired.Now = func() time.Time { return time.Now().Add(9 * time.Hour) }
	_, err = expired.Parse(tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = a.Parse("not-a-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestSessionMiddleware(t *testing.T) {
	a := auth.NewAuthService("k")
	h := a.Session(echoUser())
	tok, err := a.IssueJWT(accounts(t)[0].User())
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "anonymous", w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "7:Jane Doe", w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "lti_platform_session", Value: tok})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "7:Jane Doe", w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "anonymous", w.Body.String())
}

func TestRequireUser(t *testing.T) {
	w := httptest.NewRecorder()
	auth.RequireUser(echoUser()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginHandler(t *testing.T) {
	a := auth.NewAuthService("k")
	h := auth.LoginHandler(a, accounts(t), nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"login":"jdoe","password":"s3cret"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		AccessToken string   `json:"access_token"`
		User        lti.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "Jane Doe", out.User.DisplayName)
	c, err := a.Parse(out.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.org", c.User.Email)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "lti_platform_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	for _, body := range []string{
		`{"login":"jdoe","password":"wrong"}`,
		`{"login":"nobody","password":"s3cret"}`,
	} {
		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
		assert.Equal(t, http.StatusUnauthorized, w.Code, body)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	w := httptest.NewRecorder()
	auth.LogoutHandler(auth.NewAuthService("k")).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestAccountUserNames(t *testing.T) {
	u := auth.Account{Login: "bob"}.User()
	assert.Equal(t, "bob", u.ID)
	assert.Equal(t, "bob", u.DisplayName)
}
