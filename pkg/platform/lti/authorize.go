// pkg/platform/lti/authorize.go
package lti

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

/*
OIDC Authorization Endpoint (Platform side) for LTI 1.3

The tool answers a login initiation by sending the browser here. This
endpoint checks the request against the LoginState parked by Platform.Send,
then signs the stored launch parameters into an id_token returned with
response_mode=form_post.

Required request parameters:
  - response_type=id_token
  - response_mode=form_post
  - scope containing openid
  - client_id (the tool code)
  - redirect_uri (must be registered for the tool)
  - login_hint (must equal the stored one)
  - lti_message_hint (must equal the stored one when one was sent)
  - nonce (copied to id_token)
  - state (echoed back)

The pending LoginState is consumed before any check, so it is cleared on
every outcome. Failures answer with error=access_denied, posted back to the
redirect URI when that URI is trusted and as JSON otherwise.
*/

// ToolFinder resolves a tool by code.
type ToolFinder interface {
	FromCode(ctx context.Context, code string) (*tool.Tool, error)
}

// AuthorizeServer serves the platform's LTI 1.3 authentication endpoint.
type AuthorizeServer struct {
	Tools    ToolFinder
	States   *LoginStates
	Signer   Signer
	Settings *config.Provider
	// CurrentUser returns the signed-in user; ok=false for anonymous visitors.
	CurrentUser func(*http.Request) (User, bool)
	// OnSent runs after an id_token was issued.
	OnSent func(ctx context.Context, t *tool.Tool)
	Logger *zap.Logger

	// Optional knobs
	Now      func() time.Time
	TokenTTL time.Duration // default 5 minutes
}

type authRequest struct {
	responseType string
	responseMode string
	scope        string
	clientID     string
	redirectURI  string
	loginHint    string
	messageHint  string
	nonce        string
	state        string
	prompt       string
}

func parseAuthRequest(r *http.Request) authRequest {
	_ = r.ParseForm()
	f := r.Form
	get := func(k string) string { return strings.TrimSpace(f.Get(k)) }
	return authRequest{
		responseType: get("response_type"),
		responseMode: get("response_mode"),
		scope:        get("scope"),
		clientID:     get("client_id"),
		redirectURI:  get("redirect_uri"),
		loginHint:    get("login_hint"),
		messageHint:  get("lti_message_hint"),
		nonce:        get("nonce"),
		state:        get("state"),
		prompt:       get("prompt"),
	}
}

// Handler returns the http.Handler for the auth endpoint.
func (s *AuthorizeServer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Tools == nil || s.States == nil || s.Signer == nil {
			http.Error(w, "server not configured", http.StatusInternalServerError)
			return
		}
		ctx := r.Context()
		req := parseAuthRequest(r)

		userID := AnonymousUser
		if s.CurrentUser != nil {
			if u, ok := s.CurrentUser(r); ok && u.ID != "" {
				userID = u.ID
			}
		}

		st, stErr := s.States.Consume(ctx, userID)

		t, err := s.Tools.FromCode(ctx, req.clientID)
		if err != nil || t == nil || t.ID == 0 {
			s.reject(w, nil, req, "unknown client_id")
			return
		}
		if stErr != nil {
			if !errors.Is(stErr, ErrNoLoginState) {
				s.log().Error("load login state", zap.Error(stErr))
			}
			s.reject(w, t, req, "no pending login")
			return
		}
		switch {
		case !eqFold(req.responseType, "id_token"):
			s.reject(w, t, req, "response_type must be id_token")
			return
		case !eqFold(req.responseMode, "form_post"):
			s.reject(w, t, req, "response_mode must be form_post")
			return
		case !hasScope(req.scope, "openid"):
			s.reject(w, t, req, "scope must include openid")
			return
		case req.nonce == "":
			s.reject(w, t, req, "nonce required")
			return
		case !redirectAllowed(req.redirectURI, t.RedirectionURIs):
			s.reject(w, nil, req, "redirect_uri not registered")
			return
		case st.ToolCode != t.Code:
			s.reject(w, t, req, "client_id does not match login")
			return
		case req.loginHint != st.LoginHint:
			s.reject(w, t, req, "login_hint mismatch")
			return
		case st.MessageHint != "" && req.messageHint != st.MessageHint:
			s.reject(w, t, req, "lti_message_hint mismatch")
			return
		}

		claims := BuildClaims(ClaimsInput{
			Settings:    s.Settings.Get(),
			ClientID:    t.Code,
			Nonce:       req.nonce,
			TargetLink:  st.MessageURL,
			MessageType: st.MessageType,
			Params:      st.Params,
			Now:         s.now(),
			TTL:         s.ttl(),
		})
		idToken, err := s.Signer.Sign(ctx, claims)
		if err != nil {
			s.log().Error("sign id_token", zap.String("tool", t.Code), zap.Error(err))
			writeErr(w, http.StatusInternalServerError, "signing failed")
			return
		}

		fields := []Param{{Name: "id_token", Value: idToken}}
		if req.state != "" {
			fields = append(fields, Param{Name: "state", Value: req.state})
		}
		if err := WriteAutoSubmitForm(w, req.redirectURI, "", fields); err != nil {
			s.log().Error("write form_post", zap.Error(err))
			return
		}
		s.log().Info("lti message sent",
			zap.String("tool", t.Code),
			zap.String("version", tool.V1_3.String()),
			zap.String("message_type", st.MessageType))
		if s.OnSent != nil {
			s.OnSent(ctx, t)
		}
	}
}

// reject answers with access_denied. The error is posted back to the
// redirect URI only when t is known and trusts it.
func (s *AuthorizeServer) reject(w http.ResponseWriter, t *tool.Tool, req authRequest, reason string) {
	code := ""
	if t != nil {
		code = t.Code
	}
	s.log().Info("lti authentication rejected", zap.String("tool", code), zap.String("reason", reason))
	if t != nil && redirectAllowed(req.redirectURI, t.RedirectionURIs) {
		fields := []Param{
			{Name: "error", Value: "access_denied"},
			{Name: "error_description", Value: reason},
		}
		if req.state != "" {
			fields = append(fields, Param{Name: "state", Value: req.state})
		}
		_ = WriteAutoSubmitForm(w, req.redirectURI, "", fields)
		return
	}
	writeErr(w, http.StatusForbidden, "access_denied")
}

func (s *AuthorizeServer) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *AuthorizeServer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *AuthorizeServer) ttl() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return 5 * time.Minute
}

func hasScope(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}
