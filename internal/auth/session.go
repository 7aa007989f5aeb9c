package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mind-engage/lti-platform/pkg/platform/lti"
)

const (
	defaultCookie = "lti_platform_session"
	defaultTTL    = 8 * time.Hour
	issuer        = "lti-platform"
)

var ErrInvalidToken = errors.New("invalid session token")

// AuthService issues and parses the HS256 session token that identifies the
// signed-in user on every request.
type AuthService struct {
	hmac []byte

	// Cookie is the session cookie name (default lti_platform_session).
	Cookie string
	// TTL of an issued token (default 8h).
	TTL time.Duration
	// Secure marks the cookie Secure; set it when served over https.
	Secure bool

	Now func() time.Time
}

func NewAuthService(secret string) *AuthService { return &AuthService{hmac: []byte(secret)} }

type Claims struct {
	User lti.User `json:"usr"`
	jwt.RegisteredClaims
}

func (a *AuthService) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *AuthService) ttl() time.Duration {
	if a.TTL > 0 {
		return a.TTL
	}
	return defaultTTL
}

func (a *AuthService) cookie() string {
	if a.Cookie != "" {
		return a.Cookie
	}
	return defaultCookie
}

func (a *AuthService) IssueJWT(u lti.User) (string, error) {
	now := a.now()
	claims := &Claims{
		User: u,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl())),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.User.ID == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// SetCookie writes the session cookie for u.
func (a *AuthService) SetCookie(w http.ResponseWriter, u lti.User) error {
	tok, err := a.IssueJWT(u)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie(),
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.Secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  a.now().Add(a.ttl()),
	})
	return nil
}

func (a *AuthService) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.Secure,
		MaxAge:   -1,
	})
}

// token reads a bearer token first, then the session cookie.
func (a *AuthService) token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(a.cookie()); err == nil {
		return c.Value
	}
	return ""
}

// Session attaches the signed-in user to the request context. Requests
// without a valid token pass through as anonymous visitors.
func (a *AuthService) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := a.token(r); tok != "" {
			if c, err := a.Parse(tok); err == nil {
				r = r.WithContext(WithUser(r.Context(), c.User))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); !ok {
			http.Error(w, "login required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
