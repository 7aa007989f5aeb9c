package lti

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/lti-platform/pkg/platform/session"
)

// ErrNoLoginState is returned when no login is pending for the user.
var ErrNoLoginState = errors.New("lti: no pending login")

// LoginState is what the platform remembers between redirecting the browser
// to a tool's login endpoint and the tool's authentication request.
type LoginState struct {
	ToolCode    string    `json:"tool"`
	MessageURL  string    `json:"message_url"`
	LoginHint   string    `json:"login_hint"`
	MessageHint string    `json:"lti_message_hint,omitempty"`
	MessageType string    `json:"message_type"`
	Params      *Params   `json:"params"`
	Created     time.Time `json:"created"`
}

// LoginStates keeps one pending login per user. A newer login for the same
// user replaces the older one.
type LoginStates struct {
	Store session.Store
	TTL   time.Duration // default 10 minutes
}

// AnonymousUser keys logins of visitors without an account.
const AnonymousUser = "0"

func loginKey(userID string) string {
	if userID == "" {
		userID = AnonymousUser
	}
	return "login:" + userID
}

// Save stores st for userID.
func (l *LoginStates) Save(ctx context.Context, userID string, st LoginState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("lti: encode login state: %w", err)
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return l.Store.Put(ctx, loginKey(userID), b, ttl)
}

// Consume returns and clears the pending login for userID. A second call
// for the same login fails with ErrNoLoginState.
func (l *LoginStates) Consume(ctx context.Context, userID string) (LoginState, error) {
	b, err := l.Store.Take(ctx, loginKey(userID))
	if errors.Is(err, session.ErrNotFound) {
		return LoginState{}, ErrNoLoginState
	}
	if err != nil {
		return LoginState{}, err
	}
	var st LoginState
	if err := json.Unmarshal(b, &st); err != nil {
		return LoginState{}, fmt.Errorf("lti: decode login state: %w", err)
	}
	if st.Params == nil {
		st.Params = &Params{}
	}
	return st, nil
}
