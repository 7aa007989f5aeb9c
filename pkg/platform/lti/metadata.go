// pkg/platform/lti/metadata.go
package lti

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
)

/*
OpenID Provider Discovery (".well-known/openid-configuration").

Tool administrators need the platform issuer, the authentication endpoint,
the JWKS URL and the deployment id to register this platform. All of them
derive from the site URL:

	issuer                  {site}
	authorization_endpoint  {site}/?lti-platform&auth
	jwks_uri                {site}/?lti-platform&keys
*/

// PlatformEndpoints are the public URLs of the platform.
type PlatformEndpoints struct {
	Issuer        string `json:"issuer"`
	Authorization string `json:"authorization_endpoint"`
	JWKS          string `json:"jwks_uri"`
	DeploymentID  string `json:"deployment_id"`
}

// Endpoints derives the public URLs from the settings.
func Endpoints(s config.Settings) PlatformEndpoints {
	iss := s.Issuer()
	return PlatformEndpoints{
		Issuer:        iss,
		Authorization: iss + "/?lti-platform&auth",
		JWKS:          iss + "/?lti-platform&keys",
		DeploymentID:  deploymentID(s),
	}
}

type MetadataServer struct {
	Settings *config.Provider

	CacheMaxAge time.Duration // default 1h
}

// OpenIDConfiguration returns a handler for /.well-known/openid-configuration.
func (s *MetadataServer) OpenIDConfiguration() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.Settings.Get()
		if st.Issuer() == "" {
			http.Error(w, "metadata: site url not configured", http.StatusInternalServerError)
			return
		}
		ep := Endpoints(st)
		cfg := map[string]any{
			"issuer":                                ep.Issuer,
			"authorization_endpoint":                ep.Authorization,
			"jwks_uri":                              ep.JWKS,
			"response_modes_supported":              []string{"form_post"},
			"response_types_supported":              []string{"id_token"},
			"scopes_supported":                      []string{"openid"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
			"claims_supported": []string{
				"iss", "sub", "aud", "exp", "iat", "nonce", "azp",
				"name", "given_name", "family_name", "email",
				ltiClaimMessageType, ltiClaimVersion, ltiClaimDeployment, ltiClaimTarget,
				ltiClaimResource, ltiClaimContext, ltiClaimRoles, ltiClaimToolPlat,
				ltiClaimPresentation, ltiClaimCustom, dlClaimSettings,
			},
			"https://purl.imsglobal.org/spec/lti-platform-configuration": map[string]any{
				"product_family_code": orDefault(st.ProductFamilyCode, "lti-platform"),
				"version":             orDefault(st.ProductVersion, "1.0"),
				"guid":                st.PlatformGUID,
				"deployment_id":       ep.DeploymentID,
				"messages_supported": []map[string]any{
					{"type": MessageLTI13Launch},
					{"type": MessageLTI13DeepLink},
				},
			},
		}

		payload, _ := json.Marshal(cfg)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(s.cacheAge().Seconds())))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}
}

func (s *MetadataServer) cacheAge() time.Duration {
	if s.CacheMaxAge > 0 {
		return s.CacheMaxAge
	}
	return time.Hour
}

func orDefault(sv, d string) string {
	return nonEmpty(sv, d)
}
