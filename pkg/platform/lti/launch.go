// pkg/platform/lti/launch.go
package lti

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

/*
Launch message construction.

Parameters are written in a fixed order and later writes win:

 1) base context and platform identification
 2) message type (resource link or content-item selection)
 3) presentation size, for popup/iframe/embed only
 4) privacy fields, each behind its own tool setting
 5) custom parameters, link attribute first then tool setting

The same parameter set feeds both transports: it is OAuth1 signed as a form
for LTI 1.0 or mapped onto id_token claims for LTI 1.3.
*/

// Message types.
const (
	MessageLaunch          = "basic-lti-launch-request"
	MessageContentItem     = "ContentItemSelectionRequest"
	MessageLTI13Launch     = "LtiResourceLinkRequest"
	MessageLTI13DeepLink   = "LtiDeepLinkingRequest"
	MessageLTI13DeepLinkRs = "LtiDeepLinkingResponse"
)

// Link presentation targets.
const (
	TargetWindow  = "window"
	TargetPopup   = "popup"
	TargetIframe  = "iframe"
	TargetEmbed   = "embed"
	TargetURLOnly = "urlonly"
)

// Failure reasons reported by launches. They are shown to users only in
// debug mode.
const (
	ReasonInvalidPost   = "Missing or invalid post attribute in link"
	ReasonMissingID     = "Missing id attribute in link"
	ReasonNoTool        = "No tool specified"
	ReasonMissingTool   = "Missing tool attribute in link"
	ReasonToolNotFound  = "Tool not found"
	ReasonDuplicateID   = "Duplicate id attribute in link"
	ReasonInvalidTarget = "Invalid target specified"
	ReasonInvalidURL    = "Invalid url attribute"
)

// LaunchError carries a launch failure reason.
type LaunchError struct {
	Reason string
	Debug  bool // reason may be shown to the user
}

func (e *LaunchError) Error() string { return "lti: " + e.Reason }

// User is the person a launch is made for.
type User struct {
	ID          string   `json:"id"`
	Login       string   `json:"login"`
	DisplayName string   `json:"display_name"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	CanManage   bool     `json:"can_manage"`
}

// Context is the page a link is embedded in.
type Context struct {
	PostID int64
	Title  string
}

// LinkAttrs are the per-embed attributes of one link.
type LinkAttrs struct {
	Tool   string
	ID     string
	Custom string
	Target string
	Width  string
	Height string
	Title  string
	URL    string
	Class  string
	Style  string
	Text   string // wrapped link text
}

// Request is everything needed to build one message.
type Request struct {
	Tool     *tool.Tool
	Context  Context
	Link     LinkAttrs
	User     User
	DeepLink bool
}

// Message is a built, unsigned launch.
type Message struct {
	URL        string
	Type       string // LTI 1.0 message type
	Target     string
	Params     *Params
	Resolution tool.Resolution
	Tool       *tool.Tool
}

// Builder assembles launch messages.
type Builder struct {
	Settings *config.Provider
}

// Build returns the message for req or a *LaunchError.
func (b *Builder) Build(req Request) (*Message, error) {
	t := req.Tool
	if t == nil {
		return nil, &LaunchError{Reason: ReasonToolNotFound}
	}
	s := b.Settings.Get()
	debug := t.DebugMode || s.Debug

	target, ok := ResolveTarget(req.Link.Target, t)
	if !ok {
		return nil, &LaunchError{Reason: ReasonInvalidTarget, Debug: debug}
	}
	launchURL, ok := ResolveURL(req.Link.URL, t, req.DeepLink)
	if !ok {
		return nil, &LaunchError{Reason: ReasonInvalidURL, Debug: debug}
	}
	res := tool.EffectiveResolution(*t, s)
	v13 := res.Version == tool.V1_3

	p := &Params{}

	// 1) base
	p.Set("context_id", strconv.FormatInt(req.Context.PostID, 10))
	p.Set("context_title", req.Context.Title)
	p.Set("context_type", "CourseSection")
	p.Set("launch_presentation_document_target", transmittedTarget(target))
	p.Set("tool_consumer_info_product_family_code", s.ProductFamilyCode)
	p.Set("tool_consumer_info_version", s.ProductVersion)
	p.Set("tool_consumer_instance_name", s.SiteName)
	p.Set("tool_consumer_instance_description", s.SiteDescription)
	p.Set("tool_consumer_instance_url", s.Issuer())
	p.Set("tool_consumer_instance_contact_email", s.AdminEmail)
	if s.PlatformGUID != "" {
		p.Set("tool_consumer_instance_guid", s.PlatformGUID)
	}

	// 2) message type
	msgType := MessageLaunch
	if !req.DeepLink {
		p.Set("resource_link_id", strconv.FormatInt(req.Context.PostID, 10)+"-"+req.Link.ID)
		p.Set("resource_link_title", linkTitle(req.Link, t))
	} else {
		msgType = MessageContentItem
		p.Set("accept_media_types", "application/vnd.ims.lti.v1.ltilink,*/*")
		p.Set("accept_multiple", "false")
		p.Set("accept_presentation_document_targets", "embed,frame,iframe,window,popup")
		p.Set("content_item_return_url", ContentItemReturnURL(s, t.Code))
	}

	// 3) size
	if target == TargetPopup || target == TargetIframe || target == TargetEmbed {
		if w := dimension(req.Link.Width, t.Setting(tool.SettingPresentationWidth, "")); w != "" {
			p.Set("launch_presentation_width", w)
		}
		if h := dimension(req.Link.Height, t.Setting(tool.SettingPresentationHeight, "")); h != "" {
			p.Set("launch_presentation_height", h)
		}
	}

	// 4) privacy
	u := req.User
	if t.SettingBool(tool.SettingSendUserID) {
		p.Set("user_id", u.ID)
	}
	if t.SettingBool(tool.SettingSendUserName) {
		if u.DisplayName != "" {
			p.Set("lis_person_name_full", u.DisplayName)
		}
		if u.FirstName != "" {
			p.Set("lis_person_name_given", u.FirstName)
		}
		if u.LastName != "" {
			p.Set("lis_person_name_family", u.LastName)
		}
	}
	if t.SettingBool(tool.SettingSendUserEmail) {
		p.Set("lis_person_contact_email_primary", u.Email)
	}
	if t.SettingBool(tool.SettingSendUserRole) {
		roles := MapRoles(u.Roles, t, s.RoleMap, u.CanManage, res.Version)
		p.Set("roles", strings.Join(roles, ","))
	}
	if t.SettingBool(tool.SettingSendUserUsername) {
		p.Set("ext_username", u.Login)
	}

	// 5) custom
	if req.Link.Custom != "" {
		addCustom(p, ParseCustom(req.Link.Custom), v13)
	}
	if c := t.Setting(tool.SettingCustom, ""); c != "" {
		addCustom(p, ParseCustom(DecodeToolCustom(c)), v13)
	}

	return &Message{
		URL:        launchURL,
		Type:       msgType,
		Target:     target,
		Params:     p,
		Resolution: res,
		Tool:       t,
	}, nil
}

// ResolveTarget picks the link target, falling back to the tool setting and
// then "window".
func ResolveTarget(linkTarget string, t *tool.Tool) (string, bool) {
	target := strings.TrimSpace(linkTarget)
	if target == "" {
		target = t.Setting(tool.SettingPresentationTarget, TargetWindow)
	}
	return target, ValidTarget(target)
}

// ValidTarget reports whether target is a known presentation target.
func ValidTarget(target string) bool {
	switch target {
	case TargetWindow, TargetPopup, TargetIframe, TargetEmbed, TargetURLOnly:
		return true
	}
	return false
}

// ResolveURL applies a link url override. An empty override uses the tool
// endpoint, a relative one is appended to the message URL and an absolute
// one must lie under the message URL.
func ResolveURL(override string, t *tool.Tool, deepLink bool) (string, bool) {
	override = strings.TrimSpace(override)
	switch {
	case override == "":
		if deepLink {
			return t.DeepLinkURL(), true
		}
		return t.MessageURL, true
	case !strings.Contains(override, "://"):
		return t.MessageURL + override, true
	case t.MessageURL != "" && strings.HasPrefix(override, t.MessageURL):
		return override, true
	}
	return "", false
}

// ContentItemReturnURL is where a tool posts its content-item selection.
func ContentItemReturnURL(s config.Settings, code string) string {
	return s.Issuer() + "/?lti-platform&content&tool=" + url.QueryEscape(code)
}

func transmittedTarget(target string) string {
	if target == TargetPopup || target == TargetURLOnly {
		return TargetWindow
	}
	return target
}

func linkTitle(l LinkAttrs, t *tool.Tool) string {
	switch {
	case l.Title != "":
		return l.Title
	case strings.TrimSpace(l.Text) != "":
		return strings.TrimSpace(l.Text)
	default:
		return t.Code
	}
}

// dimension prefers a positive leading integer in override over def.
func dimension(override, def string) string {
	if n := leadingInt(override); n > 0 {
		return strconv.Itoa(n)
	}
	return def
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
		if n > 1<<30 {
			return 0
		}
	}
	return n
}
