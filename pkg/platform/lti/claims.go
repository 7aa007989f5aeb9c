package lti

import (
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
)

const (
	ltiClaimMessageType  = "https://purl.imsglobal.org/spec/lti/claim/message_type"
	ltiClaimVersion      = "https://purl.imsglobal.org/spec/lti/claim/version"
	ltiClaimDeployment   = "https://purl.imsglobal.org/spec/lti/claim/deployment_id"
	ltiClaimTarget       = "https://purl.imsglobal.org/spec/lti/claim/target_link_uri"
	ltiClaimContext      = "https://purl.imsglobal.org/spec/lti/claim/context"
	ltiClaimResource     = "https://purl.imsglobal.org/spec/lti/claim/resource_link"
	ltiClaimRoles        = "https://purl.imsglobal.org/spec/lti/claim/roles"
	ltiClaimToolPlat     = "https://purl.imsglobal.org/spec/lti/claim/tool_platform"
	ltiClaimPresentation = "https://purl.imsglobal.org/spec/lti/claim/launch_presentation"
	ltiClaimCustom       = "https://purl.imsglobal.org/spec/lti/claim/custom"
	ltiClaimExt          = "https://purl.imsglobal.org/spec/lti/claim/ext"

	// Deep linking
	dlClaimSettings = "https://purl.imsglobal.org/spec/lti-dl/claim/deep_linking_settings"
	// DLClaimContentItems carries the items of a deep linking response.
	DLClaimContentItems = "https://purl.imsglobal.org/spec/lti-dl/claim/content_items"
	DLClaimData         = "https://purl.imsglobal.org/spec/lti-dl/claim/data"
	DLClaimMessageType  = ltiClaimMessageType

	courseSectionType = "http://purl.imsglobal.org/vocab/lis/v2/course#CourseSection"
)

// ClaimsInput is what BuildClaims needs besides the stored parameters.
type ClaimsInput struct {
	Settings    config.Settings
	ClientID    string
	Nonce       string
	TargetLink  string
	MessageType string // LTI 1.0 message type stored with the login
	Params      *Params
	Now         time.Time
	TTL         time.Duration
}

// BuildClaims maps a launch parameter set onto LTI 1.3 id_token claims.
func BuildClaims(in ClaimsInput) map[string]any {
	p := in.Params
	if p == nil {
		p = &Params{}
	}
	s := in.Settings
	claims := map[string]any{
		"iss":   s.Issuer(),
		"aud":   in.ClientID,
		"azp":   in.ClientID,
		"iat":   in.Now.Unix(),
		"exp":   in.Now.Add(in.TTL).Unix(),
		"nonce": in.Nonce,

		ltiClaimVersion:    "1.3.0",
		ltiClaimDeployment: deploymentID(s),
		ltiClaimTarget:     in.TargetLink,
	}
	if v := p.Value("user_id"); v != "" {
		claims["sub"] = v
	}
	setIf(claims, "name", p.Value("lis_person_name_full"))
	setIf(claims, "given_name", p.Value("lis_person_name_given"))
	setIf(claims, "family_name", p.Value("lis_person_name_family"))
	setIf(claims, "email", p.Value("lis_person_contact_email_primary"))

	roles := []string{}
	for _, r := range strings.Split(p.Value("roles"), ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	claims[ltiClaimRoles] = roles

	if id := p.Value("context_id"); id != "" {
		ctx := map[string]any{"id": id}
		setIf(ctx, "title", p.Value("context_title"))
		if p.Value("context_type") == "CourseSection" {
			ctx["type"] = []string{courseSectionType}
		}
		claims[ltiClaimContext] = ctx
	}

	pres := map[string]any{}
	setIf(pres, "document_target", p.Value("launch_presentation_document_target"))
	setIntIf(pres, "width", p.Value("launch_presentation_width"))
	setIntIf(pres, "height", p.Value("launch_presentation_height"))
	setIf(pres, "return_url", p.Value("launch_presentation_return_url"))
	if len(pres) > 0 {
		claims[ltiClaimPresentation] = pres
	}

	plat := map[string]any{}
	setIf(plat, "guid", p.Value("tool_consumer_instance_guid"))
	setIf(plat, "name", p.Value("tool_consumer_instance_name"))
	setIf(plat, "description", p.Value("tool_consumer_instance_description"))
	setIf(plat, "url", p.Value("tool_consumer_instance_url"))
	setIf(plat, "contact_email", p.Value("tool_consumer_instance_contact_email"))
	setIf(plat, "product_family_code", p.Value("tool_consumer_info_product_family_code"))
	setIf(plat, "version", p.Value("tool_consumer_info_version"))
	if len(plat) > 0 {
		claims[ltiClaimToolPlat] = plat
	}

	custom := map[string]any{}
	ext := map[string]any{}
	for _, kv := range p.List() {
		switch {
		case strings.HasPrefix(kv.Name, "custom_"):
			custom[strings.TrimPrefix(kv.Name, "custom_")] = kv.Value
		case strings.HasPrefix(kv.Name, "ext_"):
			ext[strings.TrimPrefix(kv.Name, "ext_")] = kv.Value
		}
	}
	if len(custom) > 0 {
		claims[ltiClaimCustom] = custom
	}
	if len(ext) > 0 {
		claims[ltiClaimExt] = ext
	}

	if in.MessageType == MessageContentItem {
		claims[ltiClaimMessageType] = MessageLTI13DeepLink
		dl := map[string]any{
			"deep_link_return_url": p.Value("content_item_return_url"),
			"accept_types":         []string{"ltiResourceLink"},
			"accept_multiple":      p.Value("accept_multiple") == "true",
		}
		if t := splitList(p.Value("accept_presentation_document_targets")); len(t) > 0 {
			dl["accept_presentation_document_targets"] = t
		}
		setIf(dl, "accept_media_types", p.Value("accept_media_types"))
		setIf(dl, "data", p.Value("data"))
		claims[dlClaimSettings] = dl
	} else {
		claims[ltiClaimMessageType] = MessageLTI13Launch
		rl := map[string]any{"id": p.Value("resource_link_id")}
		setIf(rl, "title", p.Value("resource_link_title"))
		claims[ltiClaimResource] = rl
	}
	return claims
}

func setIf(m map[string]any, k, v string) {
	if v != "" {
		m[k] = v
	}
}

func setIntIf(m map[string]any, k, v string) {
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
		m[k] = n
	}
}

func splitList(s string) []string {
	var out []string
	for _, x := range strings.Split(s, ",") {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}
