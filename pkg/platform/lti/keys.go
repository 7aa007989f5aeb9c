// pkg/platform/lti/keys.go
package lti

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
)

/*
Platform signing key.

The platform has exactly one RSA key pair, configured as (kid, PEM private
key) in the platform settings. KeySource parses the PEM on first use and
again only when the configured PEM changes. It signs LTI 1.3 id_tokens
(RS256, "kid" header) and publishes the public half as a JWKS.
*/

var ErrNoSigningKey = errors.New("keys: platform signing key not configured")

// Signer signs id_token claims.
type Signer interface {
	Sign(ctx context.Context, claims map[string]any) (string, error)
}

// KeySource implements Signer and JWKSProvider over the platform settings.
type KeySource struct {
	Settings *config.Provider

	mu     sync.Mutex
	pemSrc string
	priv   *rsa.PrivateKey
}

func NewKeySource(settings *config.Provider) *KeySource {
	return &KeySource{Settings: settings}
}

// PrivateKey returns the parsed key and its kid.
func (k *KeySource) PrivateKey() (*rsa.PrivateKey, string, error) {
	s := k.Settings.Get()
	if !s.HasSigningKey() {
		return nil, "", ErrNoSigningKey
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.priv == nil || k.pemSrc != s.PrivateKey {
		priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalizePEM(s.PrivateKey)))
		if err != nil {
			return nil, "", fmt.Errorf("keys: parse private key: %w", err)
		}
		k.priv, k.pemSrc = priv, s.PrivateKey
	}
	return k.priv, strings.TrimSpace(s.KID), nil
}

// Sign produces an RS256 JWT with the platform kid in the header.
func (k *KeySource) Sign(_ context.Context, claims map[string]any) (string, error) {
	priv, kid, err := k.PrivateKey()
	if err != nil {
		return "", err
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims(claims))
	tok.Header["kid"] = kid
	return tok.SignedString(priv)
}

// PublicJWKS returns the public key set. Without a configured key the set
// is empty.
func (k *KeySource) PublicJWKS(_ context.Context) (jwk.Set, error) {
	set := jwk.NewSet()
	priv, kid, err := k.PrivateKey()
	if errors.Is(err, ErrNoSigningKey) {
		return set, nil
	}
	if err != nil {
		return nil, err
	}
	key, err := PublicJWK(&priv.PublicKey, kid)
	if err != nil {
		return nil, err
	}
	if err := set.AddKey(key); err != nil {
		return nil, err
	}
	return set, nil
}

// PublicJWK wraps an RSA public key as a signing JWK.
func PublicJWK(pub *rsa.PublicKey, kid string) (jwk.Key, error) {
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return nil, fmt.Errorf("keys: build jwk: %w", err)
	}
	_ = key.Set(jwk.KeyIDKey, kid)
	_ = key.Set(jwk.AlgorithmKey, jwa.RS256)
	_ = key.Set(jwk.KeyUsageKey, "sig")
	return key, nil
}

// GenerateSigningKey creates an RSA key and returns it as PKCS#8 PEM with a
// derived kid.
func GenerateSigningKey(bits int) (pemKey, kid string, err error) {
	if bits <= 0 {
		bits = 2048
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", err
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", err
	}
	pemKey = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	return pemKey, makeKID(&priv.PublicKey), nil
}

// makeKID hashes the public modulus and exponent.
func makeKID(pub *rsa.PublicKey) string {
	h := sha256.New()
	h.Write(pub.N.Bytes())
	h.Write([]byte{byte(pub.E >> 24), byte(pub.E >> 16), byte(pub.E >> 8), byte(pub.E)})
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// normalizePEM restores line breaks in keys pasted on one line or stored
// with encoded CRLF.
func normalizePEM(s string) string {
	s = strings.ReplaceAll(s, "&#13;&#10;", "\n")
	s = strings.ReplaceAll(s, `\n`, "\n")
	return strings.TrimSpace(s)
}
