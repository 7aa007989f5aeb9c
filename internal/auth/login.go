package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/lti-platform/pkg/platform/lti"
)

var ErrBadCredentials = errors.New("invalid credentials")

// Account is one configured platform user. Roles are site role names
// (administrator, editor, subscriber, ...) translated by the platform role map.
type Account struct {
	ID           string   `mapstructure:"id"`
	Login        string   `mapstructure:"login"`
	PasswordHash string   `mapstructure:"password_hash"` // bcrypt
	DisplayName  string   `mapstructure:"display_name"`
	FirstName    string   `mapstructure:"first_name"`
	LastName     string   `mapstructure:"last_name"`
	Email        string   `mapstructure:"email"`
	Roles        []string `mapstructure:"roles"`
	CanManage    bool     `mapstructure:"can_manage"`
}

func (a Account) User() lti.User {
	id := a.ID
	if id == "" {
		id = a.Login
	}
	name := a.DisplayName
	if name == "" {
		name = strings.TrimSpace(a.FirstName + " " + a.LastName)
	}
	if name == "" {
		name = a.Login
	}
	return lti.User{
		ID:          id,
		Login:       a.Login,
		DisplayName: name,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Email:       a.Email,
		Roles:       append([]string(nil), a.Roles...),
		CanManage:   a.CanManage,
	}
}

type Directory interface {
	Authenticate(ctx context.Context, login, password string) (lti.User, error)
}

// Accounts is a Directory over a fixed list, usually read from config.
type Accounts []Account

func (as Accounts) Authenticate(_ context.Context, login, password string) (lti.User, error) {
	for _, a := range as {
		if subtle.ConstantTimeCompare([]byte(a.Login), []byte(login)) != 1 || a.PasswordHash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
			return lti.User{}, ErrBadCredentials
		}
		return a.User(), nil
	}
	return lti.User{}, ErrBadCredentials
}

// POST /auth/login  { "login": "...", "password": "..." }
func LoginHandler(a *AuthService, dir Directory, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Login    string `json:"login"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		u, err := dir.Authenticate(r.Context(), strings.TrimSpace(req.Login), req.Password)
		if err != nil {
			logger.Info("login rejected", zap.String("login", req.Login))
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		tok, err := a.IssueJWT(u)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		if err := a.SetCookie(w, u); err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		logger.Info("login accepted", zap.String("user", u.ID))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": tok, "user": u})
	}
}

// POST /auth/logout
func LogoutHandler(a *AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.ClearCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /auth/me
func MeHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r)
	if !ok {
		http.Error(w, "login required", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(u)
}
