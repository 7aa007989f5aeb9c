package lti_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/lti-platform/pkg/platform/lti"
)

func TestSignatureBaseString(t *testing.T) {
	base, err := lti.SignatureBaseString("get", "http://Example.com:80/a%20b?x=1", url.Values{"c": {"d&e"}})
	require.NoError(t, err)
	assert.Equal(t, "GET&http%3A%2F%2Fexample.com%2Fa%2520b&c%3Dd%2526e%26x%3D1", base)
}

func TestOAuth1SignVerify(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := lti.OAuth1Signer{
		Key:    "key",
		Secret: "s3cr&t",
		Now:    func() time.Time { return now },
		Nonce:  func() string { return "fixednonce" },
	}
	params := &lti.Params{}
	params.Set("resource_link_id", "12-abc")
	params.Set("custom_note", "a b+c")

	const target = "https://tool.example.com/lti?course=7"
	signed, err := signer.Sign("POST", target, params)
	require.NoError(t, err)

	_, ok := params.Get("oauth_signature")
	assert.False(t, ok, "input params are not modified")
	assert.Equal(t, "fixednonce", signed.Value("oauth_nonce"))
	assert.Equal(t, "1700000000", signed.Value("oauth_timestamp"))
	assert.Equal(t, "HMAC-SHA1", signed.Value("oauth_signature_method"))
	assert.Equal(t, "1.0", signed.Value("oauth_version"))
	assert.NotEmpty(t, signed.Value("oauth_signature"))

	form := signed.Values()
	require.NoError(t, lti.VerifyOAuth1("POST", target, form, "s3cr&t", now, 0))

	assert.ErrorIs(t, lti.VerifyOAuth1("POST", target, form, "other", now, 0), lti.ErrOAuthSignature)
	assert.ErrorIs(t, lti.VerifyOAuth1("POST", "https://tool.example.com/lti", form, "s3cr&t", now, 0), lti.ErrOAuthSignature)
	assert.ErrorIs(t, lti.VerifyOAuth1("POST", target, form, "s3cr&t", now.Add(10*time.Minute), 0), lti.ErrOAuthTimestamp)

	tampered := url.Values{}
	for k, v := range form {
		tampered[k] = v
	}
	tampered.Set("custom_note", "changed")
	assert.ErrorIs(t, lti.VerifyOAuth1("POST", target, tampered, "s3cr&t", now, 0), lti.ErrOAuthSignature)
}

func TestSignDefaultNonceIsUnique(t *testing.T) {
	signer := lti.OAuth1Signer{Key: "k", Secret: "s"}
	a, err := signer.Sign("POST", "https://t.example.com/", &lti.Params{})
	require.NoError(t, err)
	b, err := signer.Sign("POST", "https://t.example.com/", &lti.Params{})
	require.NoError(t, err)
	assert.NotEqual(t, a.Value("oauth_nonce"), b.Value("oauth_nonce"))
	assert.NotContains(t, a.Value("oauth_nonce"), "-")
}
