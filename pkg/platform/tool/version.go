package tool

import (
	"strings"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
)

// Version is the LTI protocol generation a tool is launched with.
type Version int

const (
	V1_0 Version = iota + 1 // LTI 1.0/1.1/1.2, OAuth1 signed form
	V1_3                    // LTI 1.3, OIDC login + RS256 id_token
)

func (v Version) String() string {
	switch v {
	case V1_0:
		return "LTI-1p0"
	case V1_3:
		return "1.3.0"
	default:
		return "unknown"
	}
}

// SignatureMethod is the message signing algorithm.
type SignatureMethod string

const (
	HMACSHA1 SignatureMethod = "HMAC-SHA1"
	RS256    SignatureMethod = "RS256"
)

// Resolution is the protocol variant chosen for a tool.
type Resolution struct {
	Version         Version
	SignatureMethod SignatureMethod
}

// ResolveVersion is LTI 1.3/RS256 when both an initiate-login URL and at
// least one redirection URI are configured, else LTI 1.0/HMAC-SHA1.
func ResolveVersion(t Tool) Resolution {
	if strings.TrimSpace(t.InitiateLoginURL) == "" || !hasRedirect(t.RedirectionURIs) {
		return Resolution{Version: V1_0, SignatureMethod: HMACSHA1}
	}
	return Resolution{Version: V1_3, SignatureMethod: RS256}
}

// CanUseLTI13 additionally requires the platform key id and private key.
func CanUseLTI13(t Tool, s config.Settings) bool {
	return ResolveVersion(t).Version == V1_3 && s.HasSigningKey()
}

// EffectiveResolution is the variant a launch actually uses: a tool
// configured for 1.3 falls back to 1.0 while the platform has no signing key.
func EffectiveResolution(t Tool, s config.Settings) Resolution {
	if CanUseLTI13(t, s) {
		return Resolution{Version: V1_3, SignatureMethod: RS256}
	}
	return Resolution{Version: V1_0, SignatureMethod: HMACSHA1}
}

// CanBeEnabled requires a message URL and either a key/secret pair or a
// complete LTI 1.3 configuration.
func CanBeEnabled(t Tool, s config.Settings) bool {
	if strings.TrimSpace(t.MessageURL) == "" {
		return false
	}
	if strings.TrimSpace(t.Key) != "" && strings.TrimSpace(t.Secret) != "" {
		return true
	}
	return CanUseLTI13(t, s)
}

func hasRedirect(uris []string) bool {
	for _, u := range uris {
		if strings.TrimSpace(u) != "" {
			return true
		}
	}
	return false
}
