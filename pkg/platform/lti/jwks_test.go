package lti_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/lti"
)

func TestJWKSHandler(t *testing.T) {
	pemKey, kid, err := lti.GenerateSigningKey(2048)
	require.NoError(t, err)
	s := testSettings()
	s.PrivateKey, s.KID = pemKey, kid
	h := &lti.JWKSHandler{Provider: lti.NewKeySource(config.NewProvider(s))}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lti-platform&keys", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=600", rec.Header().Get("Cache-Control"))

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, kid, doc.Keys[0]["kid"])
	assert.Equal(t, "RSA", doc.Keys[0]["kty"])
	assert.Equal(t, "RS256", doc.Keys[0]["alg"])
	assert.NotContains(t, doc.Keys[0], "d", "private exponent is never published")

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	req := httptest.NewRequest(http.MethodGet, "/?lti-platform&keys", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestJWKSWithoutKeyIsEmpty(t *testing.T) {
	h := &lti.JWKSHandler{Provider: lti.NewKeySource(config.NewProvider(testSettings()))}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"keys":[]}`, rec.Body.String())
}
