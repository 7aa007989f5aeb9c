// pkg/platform/lti/helpers.go
package lti

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// b64url encodes bytes using base64url without padding.
func b64url(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func eqFold(a, b string) bool { return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) }

func nonEmpty(s, d string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return d
}

// redirectAllowed matches uri against the registered list. An entry ending
// in '*' matches by prefix; all others must match exactly.
func redirectAllowed(uri string, allowed []string) bool {
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if strings.HasSuffix(a, "*") {
			if strings.HasPrefix(uri, strings.TrimSuffix(a, "*")) {
				return true
			}
			continue
		}
		if a == uri {
			return true
		}
	}
	return false
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
