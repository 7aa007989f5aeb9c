// Package tool holds the Tool record, the version resolver and the registry
// that enforces code uniqueness and the enable rule on save.
package tool

import (
	"strings"
	"time"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
)

// Scope separates site-level tools from network (shared) tools.
type Scope string

const (
	ScopeSite    Scope = "site"
	ScopeNetwork Scope = "network"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool { return s == ScopeSite || s == ScopeNetwork }

// Names of the open settings carried in Tool.Settings.
const (
	SettingSendUserName       = "sendUserName"
	SettingSendUserID         = "sendUserId"
	SettingSendUserEmail      = "sendUserEmail"
	SettingSendUserRole       = "sendUserRole"
	SettingSendUserUsername   = "sendUserUsername"
	SettingPresentationTarget = "presentationTarget"
	SettingPresentationWidth  = "presentationWidth"
	SettingPresentationHeight = "presentationHeight"
	SettingClass              = "class"
	SettingStyle              = "style"
	SettingCustom             = "custom"

	// SettingRolePrefix prefixes per-role mappings: role_<siteRole> = "instructor,learner".
	SettingRolePrefix = "role_"
)

// Tool is one registered external LTI application.
type Tool struct {
	ID    int64 // assigned by the store; zero until first save
	Scope Scope

	Code string
	Name string

	Enabled   bool
	Deleted   bool
	DebugMode bool

	MessageURL     string
	UseContentItem bool
	ContentItemURL string

	// LTI 1.0/1.1/1.2
	Key    string
	Secret string

	// LTI 1.3
	InitiateLoginURL string
	RedirectionURIs  []string
	JKU              string
	RSAKey           string // PEM

	Settings map[string]string

	Created    time.Time
	Updated    time.Time
	LastAccess time.Time // UTC midnight of the last launch day; zero when never launched
}

// New returns a tool in the given scope with privacy and presentation
// settings seeded from the platform defaults.
func New(scope Scope, s config.Settings) *Tool {
	t := &Tool{Scope: scope, Settings: map[string]string{}}
	t.SetSetting(SettingSendUserName, boolSetting(s.Privacy.SendUserName))
	t.SetSetting(SettingSendUserID, boolSetting(s.Privacy.SendUserID))
	t.SetSetting(SettingSendUserEmail, boolSetting(s.Privacy.SendUserEmail))
	t.SetSetting(SettingSendUserRole, boolSetting(s.Privacy.SendUserRole))
	t.SetSetting(SettingSendUserUsername, boolSetting(s.Privacy.SendUserUsername))
	t.SetSetting(SettingPresentationTarget, s.Presentation.Target)
	t.SetSetting(SettingPresentationWidth, s.Presentation.Width)
	t.SetSetting(SettingPresentationHeight, s.Presentation.Height)
	return t
}

// Setting returns the named setting or def when absent or empty.
func (t *Tool) Setting(name, def string) string {
	if v := t.Settings[name]; v != "" {
		return v
	}
	return def
}

// SettingBool reports whether the named setting is "true".
func (t *Tool) SettingBool(name string) bool {
	return t.Settings[name] == "true"
}

// SetSetting stores value under name; an empty value removes the setting.
func (t *Tool) SetSetting(name, value string) {
	if value == "" {
		delete(t.Settings, name)
		return
	}
	if t.Settings == nil {
		t.Settings = map[string]string{}
	}
	t.Settings[name] = value
}

// DeepLinkURL is the endpoint for content-item requests.
func (t *Tool) DeepLinkURL() string {
	if strings.TrimSpace(t.ContentItemURL) != "" {
		return t.ContentItemURL
	}
	return t.MessageURL
}

// Clone returns a deep copy.
func (t *Tool) Clone() *Tool {
	cp := *t
	if t.RedirectionURIs != nil {
		cp.RedirectionURIs = append([]string(nil), t.RedirectionURIs...)
	}
	cp.Settings = make(map[string]string, len(t.Settings))
	for k, v := range t.Settings {
		cp.Settings[k] = v
	}
	return &cp
}

// NormalizeCode lower-cases and trims a tool code.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func boolSetting(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
