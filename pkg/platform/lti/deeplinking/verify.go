// pkg/platform/lti/deeplinking/verify.go
package deeplinking

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/lti"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

/*
Verification of content-item responses.

LTI 1.0 (ContentItemSelection): an OAuth1 HMAC-SHA1 signed form posted to the
content_item_return_url, checked with the tool's key and secret. Items are in
the content_items field as JSON-LD.

LTI 1.3 (LtiDeepLinkingResponse): an RS256 JWT in the JWT form field,
issued by the tool (iss = tool code) for this platform (aud = site URL). The
tool key comes from its jku key set or, failing that, its PEM public key.
*/

var (
	ErrUnverified  = errors.New("deeplinking: message could not be verified")
	ErrReplay      = errors.New("deeplinking: message replayed")
	ErrMessageType = errors.New("deeplinking: unexpected message type")
	ErrNoToolKey   = errors.New("deeplinking: tool has no public key")
)

const (
	messageContentItem = "ContentItemSelection"
	messageDeepLinkRs  = "LtiDeepLinkingResponse"
)

// Verifier authenticates content-item responses.
type Verifier struct {
	Settings *config.Provider
	Replay   lti.Replay
	// FetchKeySet loads a tool jku; defaults to jwk.Fetch.
	FetchKeySet func(ctx context.Context, url string) (jwk.Set, error)
	Now         func() time.Time
	Skew        time.Duration // default lti.DefaultTimestampSkew
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Verifier) skew() time.Duration {
	if v.Skew > 0 {
		return v.Skew
	}
	return lti.DefaultTimestampSkew
}

func (v *Verifier) replay() lti.Replay {
	if v.Replay == nil {
		return lti.NoopReplay{}
	}
	return v.Replay
}

// Verify authenticates r for t and returns the raw content items.
func (v *Verifier) Verify(ctx context.Context, r *http.Request, t *tool.Tool) (any, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnverified, err)
	}
	if raw := strings.TrimSpace(r.PostForm.Get("JWT")); raw != "" {
		claims, err := v.VerifyJWT(ctx, raw, t)
		if err != nil {
			return nil, err
		}
		return claims[lti.DLClaimContentItems], nil
	}
	if err := v.VerifyForm(ctx, r, t); err != nil {
		return nil, err
	}
	return r.PostForm.Get("content_items"), nil
}

// VerifyForm checks an OAuth1 signed LTI 1.0 content-item form. The signed
// URL is the site URL with the request's query string.
func (v *Verifier) VerifyForm(ctx context.Context, r *http.Request, t *tool.Tool) error {
	form := r.PostForm
	if form.Get("lti_message_type") != messageContentItem {
		return ErrMessageType
	}
	if t.Key == "" || form.Get("oauth_consumer_key") != t.Key {
		return fmt.Errorf("%w: %v", ErrUnverified, lti.ErrOAuthConsumer)
	}
	signedURL := v.Settings.Get().Issuer() + "/"
	if r.URL.RawQuery != "" {
		signedURL += "?" + r.URL.RawQuery
	}
	if err := lti.VerifyOAuth1(r.Method, signedURL, form, t.Secret, v.now(), v.skew()); err != nil {
		return fmt.Errorf("%w: %v", ErrUnverified, err)
	}
	ok, err := v.replay().Use(ctx, "oauth_nonce", t.Code+":"+form.Get("oauth_nonce"), 2*v.skew())
	if err != nil {
		return err
	}
	if !ok {
		return ErrReplay
	}
	return nil
}

// VerifyJWT checks an LTI 1.3 deep linking response and returns its claims.
func (v *Verifier) VerifyJWT(ctx context.Context, raw string, t *tool.Tool) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(tok *jwt.Token) (any, error) { return v.toolKey(ctx, tok, t) },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.Settings.Get().Issuer()),
		jwt.WithIssuer(t.Code),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Minute),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnverified, err)
	}
	if mt, _ := claims[lti.DLClaimMessageType].(string); mt != messageDeepLinkRs {
		return nil, ErrMessageType
	}
	kind, value := "jti", asString(claims["jti"])
	if value == "" {
		kind, value = "nonce", asString(claims["nonce"])
	}
	if value != "" {
		ok, err := v.replay().Use(ctx, kind, t.Code+":"+value, 10*time.Minute)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrReplay
		}
	}
	return claims, nil
}

func (v *Verifier) toolKey(ctx context.Context, tok *jwt.Token, t *tool.Tool) (any, error) {
	if jku := strings.TrimSpace(t.JKU); jku != "" {
		fetch := v.FetchKeySet
		if fetch == nil {
			fetch = func(ctx context.Context, u string) (jwk.Set, error) { return jwk.Fetch(ctx, u) }
		}
		set, err := fetch(ctx, jku)
		if err != nil {
			return nil, fmt.Errorf("fetch tool keys: %w", err)
		}
		kid, _ := tok.Header["kid"].(string)
		key, ok := set.LookupKeyID(kid)
		if !ok && kid == "" && set.Len() == 1 {
			key, ok = set.Key(0)
		}
		if !ok {
			return nil, fmt.Errorf("no tool key with kid %q", kid)
		}
		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			return nil, fmt.Errorf("tool key: %w", err)
		}
		return &pub, nil
	}
	if pemKey := strings.TrimSpace(t.RSAKey); pemKey != "" {
		return jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
	}
	return nil, ErrNoToolKey
}
