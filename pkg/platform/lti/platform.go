// pkg/platform/lti/platform.go
package lti

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

/*
Platform delivers a built Message.

LTI 1.0: the parameters are OAuth1 HMAC-SHA1 signed with the tool's key and
secret and returned as an auto-submitting form to the launch URL.

LTI 1.3: the parameters are parked in a LoginState for the user and the
browser is redirected to the tool's initiate-login URL. The message itself is
signed later, by AuthorizeServer, when the tool comes back for an id_token.
*/

// Platform sends launch messages.
type Platform struct {
	Settings *config.Provider
	States   *LoginStates
	Logger   *zap.Logger
	Now      func() time.Time
}

func (p *Platform) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Send writes the response that delivers msg for user.
func (p *Platform) Send(ctx context.Context, w http.ResponseWriter, r *http.Request, msg *Message, user User) error {
	if msg == nil || msg.Tool == nil {
		return errors.New("lti: nil message")
	}
	if msg.Resolution.Version == tool.V1_3 {
		return p.initiateLogin(ctx, w, r, msg, user)
	}
	return p.sendSigned(w, msg)
}

func (p *Platform) sendSigned(w http.ResponseWriter, msg *Message) error {
	params := msg.Params.Clone()
	params.Set("lti_message_type", msg.Type)
	params.Set("lti_version", tool.V1_0.String())
	params.Set("oauth_callback", "about:blank")

	signer := OAuth1Signer{Key: msg.Tool.Key, Secret: msg.Tool.Secret, Now: p.Now}
	signed, err := signer.Sign(http.MethodPost, msg.URL, params)
	if err != nil {
		return err
	}
	p.log().Info("lti message sent",
		zap.String("tool", msg.Tool.Code),
		zap.String("version", tool.V1_0.String()),
		zap.String("message_type", msg.Type))
	return WriteAutoSubmitForm(w, msg.URL, "", signed.List())
}

func (p *Platform) initiateLogin(ctx context.Context, w http.ResponseWriter, r *http.Request, msg *Message, user User) error {
	s := p.Settings.Get()
	loginHint := nonEmpty(user.ID, AnonymousUser)
	st := LoginState{
		ToolCode:    msg.Tool.Code,
		MessageURL:  msg.URL,
		LoginHint:   loginHint,
		MessageHint: uuid.NewString(),
		MessageType: msg.Type,
		Params:      msg.Params.Clone(),
		Created:     p.now(),
	}
	if err := p.States.Save(ctx, user.ID, st); err != nil {
		return err
	}
	login := LoginInitiation{
		Issuer:        s.Issuer(),
		TargetLinkURI: msg.URL,
		LoginHint:     st.LoginHint,
		MessageHint:   st.MessageHint,
		ClientID:      msg.Tool.Code,
		DeploymentID:  deploymentID(s),
	}
	dest, err := login.URL(msg.Tool.InitiateLoginURL)
	if err != nil {
		return err
	}
	p.log().Info("lti login initiated",
		zap.String("tool", msg.Tool.Code),
		zap.String("message_type", msg.Type))
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, dest, http.StatusFound)
	return nil
}

func (p *Platform) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// LoginInitiation holds the OIDC third-party-initiated login parameters.
type LoginInitiation struct {
	Issuer        string
	TargetLinkURI string
	LoginHint     string
	MessageHint   string
	ClientID      string
	DeploymentID  string
}

// URL appends the login parameters to the tool's initiate-login URL.
func (l LoginInitiation) URL(initiateLoginURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(initiateLoginURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", errors.New("lti: invalid initiate login url")
	}
	q := u.Query()
	q.Set("iss", l.Issuer)
	q.Set("target_link_uri", l.TargetLinkURI)
	q.Set("login_hint", l.LoginHint)
	if l.MessageHint != "" {
		q.Set("lti_message_hint", l.MessageHint)
	}
	q.Set("client_id", l.ClientID)
	if l.DeploymentID != "" {
		q.Set("lti_deployment_id", l.DeploymentID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func deploymentID(s config.Settings) string {
	return nonEmpty(s.DeploymentID, "1")
}
