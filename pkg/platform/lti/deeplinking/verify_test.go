package deeplinking_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/lti"
	"github.com/mind-engage/lti-platform/pkg/platform/lti/deeplinking"
	"github.com/mind-engage/lti-platform/pkg/platform/session"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

var fixedNow = time.Unix(1700000000, 0)

func newVerifier() *deeplinking.Verifier {
	return &deeplinking.Verifier{
		Settings: config.NewProvider(config.Settings{SiteURL: "https://lms.example.org/"}),
		Replay:   lti.StoreReplay{Store: session.NewMemoryStore()},
		Now:      func() time.Time { return fixedNow },
	}
}

func toolKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func deepLinkJWT(t *testing.T, priv *rsa.PrivateKey, kid string, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":                  "quiz",
		"aud":                  "https://lms.example.org",
		"iat":                  fixedNow.Unix(),
		"exp":                  fixedNow.Add(5 * time.Minute).Unix(),
		"nonce":                "dl-nonce",
		lti.DLClaimMessageType: "LtiDeepLinkingResponse",
		lti.DLClaimContentItems: []any{map[string]any{
			"type": "ltiResourceLink", "title": "Lab", "url": "https://tool.example.com/lti/lab",
		}},
	}
	if mutate != nil {
		mutate(claims)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(priv)
	require.NoError(t, err)
	return s
}

func TestVerifyJWTWithToolPEM(t *testing.T) {
	priv, pub := toolKeyPair(t)
	tl := &tool.Tool{Code: "quiz", RSAKey: pub}
	v := newVerifier()

	claims, err := v.VerifyJWT(context.Background(), deepLinkJWT(t, priv, "", nil), tl)
	require.NoError(t, err)
	items, ok := claims[lti.DLClaimContentItems].([]any)
	require.True(t, ok)
	la, err := deeplinking.HandleContentItemResponse(items)
	require.NoError(t, err)
	assert.Equal(t, "Lab", la.Title)

	_, err = v.VerifyJWT(context.Background(), deepLinkJWT(t, priv, "", nil), tl)
	assert.ErrorIs(t, err, deeplinking.ErrReplay)
}

func TestVerifyJWTRejections(t *testing.T) {
	priv, pub := toolKeyPair(t)
	other, _ := toolKeyPair(t)
	tl := &tool.Tool{Code: "quiz", RSAKey: pub}
	ctx := context.Background()

	_, err := newVerifier().VerifyJWT(ctx, deepLinkJWT(t, other, "", nil), tl)
	assert.ErrorIs(t, err, deeplinking.ErrUnverified)

	_, err = newVerifier().VerifyJWT(ctx, deepLinkJWT(t, priv, "", func(c jwt.MapClaims) { c["aud"] = "https://elsewhere" }), tl)
	assert.ErrorIs(t, err, deeplinking.ErrUnverified)

	_, err = newVerifier().VerifyJWT(ctx, deepLinkJWT(t, priv, "", func(c jwt.MapClaims) { c["iss"] = "other" }), tl)
	assert.ErrorIs(t, err, deeplinking.ErrUnverified)

	_, err = newVerifier().VerifyJWT(ctx, deepLinkJWT(t, priv, "", func(c jwt.MapClaims) { c["exp"] = fixedNow.Add(-time.Hour).Unix() }), tl)
	assert.ErrorIs(t, err, deeplinking.ErrUnverified)

	_, err = newVerifier().VerifyJWT(ctx, deepLinkJWT(t, priv, "", func(c jwt.MapClaims) { c[lti.DLClaimMessageType] = "LtiResourceLinkRequest" }), tl)
	assert.ErrorIs(t, err, deeplinking.ErrMessageType)

	_, err = newVerifier().VerifyJWT(ctx, deepLinkJWT(t, priv, "", nil), &tool.Tool{Code: "quiz"})
	assert.ErrorIs(t, err, deeplinking.ErrUnverified)
}

func TestVerifyJWTWithJKU(t *testing.T) {
	priv, _ := toolKeyPair(t)
	key, err := lti.PublicJWK(&priv.PublicKey, "tool-kid")
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(key))

	var fetched string
	v := newVerifier()
	v.FetchKeySet = func(_ context.Context, u string) (jwk.Set, error) {
		fetched = u
		return set, nil
	}
	tl := &tool.Tool{Code: "quiz", JKU: "https://tool.example.com/jwks"}

	_, err = v.VerifyJWT(context.Background(), deepLinkJWT(t, priv, "tool-kid", nil), tl)
	require.NoError(t, err)
	assert.Equal(t, "https://tool.example.com/jwks", fetched)

	_, err = v.VerifyJWT(context.Background(), deepLinkJWT(t, priv, "unknown", func(c jwt.MapClaims) { c["nonce"] = "n2" }), tl)
	assert.ErrorIs(t, err, deeplinking.ErrUnverified)
}

func contentRequest(t *testing.T, tl *tool.Tool, items, nonce string) *http.Request {
	t.Helper()
	const query = "lti-platform&content&tool=quiz"
	params := &lti.Params{}
	params.Set("lti_message_type", "ContentItemSelection")
	params.Set("lti_version", "LTI-1p0")
	params.Set("content_items", items)
	signer := lti.OAuth1Signer{Key: tl.Key, Secret: tl.Secret,
		Now:   func() time.Time { return fixedNow },
		Nonce: func() string { return nonce },
	}
	signed, err := signer.Sign(http.MethodPost, "https://lms.example.org/?"+query, params)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/?"+query, strings.NewReader(signed.Values().Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestVerifyForm(t *testing.T) {
	tl := &tool.Tool{Code: "quiz", Key: "key", Secret: "secret"}
	v := newVerifier()
	ctx := context.Background()
	items := `{"@graph":[{"@type":"LtiLinkItem","title":"One"}]}`

	raw, err := v.Verify(ctx, contentRequest(t, tl, items, "n1"), tl)
	require.NoError(t, err)
	assert.Equal(t, items, raw)

	_, err = v.Verify(ctx, contentRequest(t, tl, items, "n1"), tl)
	assert.ErrorIs(t, err, deeplinking.ErrReplay)

	wrong := &tool.Tool{Code: "quiz", Key: "key", Secret: "other"}
	_, err = v.Verify(ctx, contentRequest(t, tl, items, "n2"), wrong)
	assert.ErrorIs(t, err, deeplinking.ErrUnverified)

	r := contentRequest(t, tl, items, "n3")
	require.NoError(t, r.ParseForm())
	r.PostForm.Set("lti_message_type", "basic-lti-launch-request")
	_, err = v.Verify(ctx, r, tl)
	assert.ErrorIs(t, err, deeplinking.ErrMessageType)
}

func TestServerWritesShortcodePage(t *testing.T) {
	reg := tool.NewRegistry(tool.NewMemoryStore(), config.NewProvider(config.Settings{}), nil)
	res, err := reg.Save(context.Background(), &tool.Tool{Scope: tool.ScopeSite, Code: "quiz", Name: "Quiz", Key: "key", Secret: "secret", MessageURL: "https://tool.example.com/lti"})
	require.NoError(t, err)

	srv := &deeplinking.Server{Tools: reg, Verifier: newVerifier(), NewID: func() string { return "ab12cd34" }}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, contentRequest(t, res.Tool, `{"@graph":[{"@type":"LtiLinkItem","url":"https://tool.example.com/lti/x"}]}`, "n1"))

	body := rec.Body.String()
	assert.Contains(t, body, "LtiPlatformInsert")
	assert.Contains(t, body, "id=ab12cd34")
	assert.Contains(t, body, "]Quiz[")

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, contentRequest(t, res.Tool, `{"@graph":[]}`, "n2"))
	assert.Contains(t, rec.Body.String(), "Sorry, unable to verify the selected content")
}
