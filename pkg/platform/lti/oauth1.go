// pkg/platform/lti/oauth1.go
package lti

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OAuth1 (RFC 5849) HMAC-SHA1 body signing as used by LTI 1.0/1.1/1.2.
// Only the consumer secret is used; the token secret is always empty.

var (
	ErrOAuthSignature = errors.New("lti: invalid oauth signature")
	ErrOAuthTimestamp = errors.New("lti: oauth timestamp outside allowed window")
	ErrOAuthConsumer  = errors.New("lti: unknown oauth consumer key")
)

// DefaultTimestampSkew bounds the accepted oauth_timestamp drift.
const DefaultTimestampSkew = 300 * time.Second

// OAuth1Signer signs parameter sets. Nonce and Now may be replaced in tests.
type OAuth1Signer struct {
	Key    string
	Secret string
	Now    func() time.Time
	Nonce  func() string
}

// Sign returns a copy of params with the oauth_* fields and signature added.
func (s OAuth1Signer) Sign(method, rawURL string, params *Params) (*Params, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	nonce := func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
	if s.Nonce != nil {
		nonce = s.Nonce
	}
	out := params.Clone()
	out.Del("oauth_signature")
	out.Set("oauth_version", "1.0")
	out.Set("oauth_nonce", nonce())
	out.Set("oauth_timestamp", strconv.FormatInt(now().Unix(), 10))
	out.Set("oauth_consumer_key", s.Key)
	out.Set("oauth_signature_method", "HMAC-SHA1")

	base, err := SignatureBaseString(method, rawURL, out.Values())
	if err != nil {
		return nil, err
	}
	out.Set("oauth_signature", hmacSHA1(base, s.Secret))
	return out, nil
}

// VerifyOAuth1 checks the signature and timestamp of an inbound form.
func VerifyOAuth1(method, rawURL string, form url.Values, secret string, now time.Time, skew time.Duration) error {
	sig := form.Get("oauth_signature")
	if sig == "" || form.Get("oauth_signature_method") != "HMAC-SHA1" {
		return ErrOAuthSignature
	}
	ts, err := strconv.ParseInt(form.Get("oauth_timestamp"), 10, 64)
	if err != nil {
		return ErrOAuthTimestamp
	}
	if skew <= 0 {
		skew = DefaultTimestampSkew
	}
	if d := now.Sub(time.Unix(ts, 0)); d > skew || d < -skew {
		return ErrOAuthTimestamp
	}
	rest := url.Values{}
	for k, v := range form {
		if k != "oauth_signature" {
			rest[k] = v
		}
	}
	base, err := SignatureBaseString(method, rawURL, rest)
	if err != nil {
		return err
	}
	want := hmacSHA1(base, secret)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrOAuthSignature
	}
	return nil
}

// SignatureBaseString builds METHOD&url&params per RFC 5849 section 3.4.1.
// Query parameters of rawURL are included with params.
func SignatureBaseString(method, rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("lti: parse launch url: %w", err)
	}
	type kv struct{ k, v string }
	var pairs []kv
	for k, vs := range u.Query() {
		for _, v := range vs {
			pairs = append(pairs, kv{percentEncode(k), percentEncode(v)})
		}
	}
	for k, vs := range params {
		for _, v := range vs {
			pairs = append(pairs, kv{percentEncode(k), percentEncode(v)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}
	return strings.ToUpper(method) + "&" + percentEncode(baseURI(u)) + "&" + percentEncode(strings.Join(parts, "&")), nil
}

// baseURI is scheme://host[:port]/path with default ports dropped.
func baseURI(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) || (scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndexByte(host, ':')]
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

func hmacSHA1(base, secret string) string {
	mac := hmac.New(sha1.New, []byte(percentEncode(secret)+"&"))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// percentEncode is RFC 3986 encoding with the unreserved set A-Z a-z 0-9 - . _ ~.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}
