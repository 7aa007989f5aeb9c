package admin

import (
	"strings"
	"time"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/lti"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

// ToolReq is the body of a create or update. On update an empty Secret
// keeps the stored one.
type ToolReq struct {
	Scope            string            `json:"scope"`
	Code             string            `json:"code"`
	Name             string            `json:"name"`
	Enabled          bool              `json:"enabled"`
	DebugMode        bool              `json:"debug_mode"`
	MessageURL       string            `json:"message_url"`
	UseContentItem   bool              `json:"use_content_item"`
	ContentItemURL   string            `json:"content_item_url"`
	Key              string            `json:"key"`
	Secret           string            `json:"secret"`
	InitiateLoginURL string            `json:"initiate_login_url"`
	RedirectionURIs  []string          `json:"redirection_uris"`
	JKU              string            `json:"jku"`
	RSAKey           string            `json:"rsa_key"`
	Settings         map[string]string `json:"settings"`
}

// ToolView is a tool as returned by the API. The shared secret is never
// echoed back.
type ToolView struct {
	ID               int64             `json:"id"`
	Scope            tool.Scope        `json:"scope"`
	Code             string            `json:"code"`
	Name             string            `json:"name"`
	Status           tool.Status       `json:"status"`
	Enabled          bool              `json:"enabled"`
	DebugMode        bool              `json:"debug_mode"`
	LTIVersion       string            `json:"lti_version"`
	SignatureMethod  string            `json:"signature_method"`
	CanBeEnabled     bool              `json:"can_be_enabled"`
	MessageURL       string            `json:"message_url"`
	UseContentItem   bool              `json:"use_content_item"`
	ContentItemURL   string            `json:"content_item_url,omitempty"`
	Key              string            `json:"key,omitempty"`
	HasSecret        bool              `json:"has_secret"`
	InitiateLoginURL string            `json:"initiate_login_url,omitempty"`
	RedirectionURIs  []string          `json:"redirection_uris,omitempty"`
	JKU              string            `json:"jku,omitempty"`
	RSAKey           string            `json:"rsa_key,omitempty"`
	Settings         map[string]string `json:"settings"`
	Created          time.Time         `json:"created"`
	Modified         time.Time         `json:"modified"`
	LastAccess       string            `json:"last_access,omitempty"` // YYYY-MM-DD
}

// SaveResp answers a create or update.
type SaveResp struct {
	Tool ToolView `json:"tool"`
	// Downgraded is set when the tool was requested enabled but saved
	// disabled because it is not fully configured.
	Downgraded bool   `json:"downgraded,omitempty"`
	Notice     string `json:"notice,omitempty"`
}

// ListResp answers GET /tools.
type ListResp struct {
	Items  []ToolView `json:"items"`
	Total  int        `json:"total"`
	Counts Counts     `json:"counts"`
}

// Counts are the per-status totals shown as list views. All excludes the bin.
type Counts struct {
	All     int `json:"all"`
	Publish int `json:"publish"`
	Draft   int `json:"draft"`
	Trash   int `json:"trash"`
}

// BulkReq applies Action to every id.
type BulkReq struct {
	Action string  `json:"action"`
	IDs    []int64 `json:"ids"`
}

// BulkResp reports the outcome of a bulk action.
type BulkResp struct {
	Action  string       `json:"action"`
	Notice  string       `json:"notice"`
	Results []BulkResult `json:"results"`
}

type BulkResult struct {
	ID    int64  `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// SettingsView is the platform configuration without the private key.
type SettingsView struct {
	Debug             bool                  `json:"debug"`
	PlatformGUID      string                `json:"platform_guid,omitempty"`
	SiteURL           string                `json:"site_url"`
	SiteName          string                `json:"site_name"`
	SiteDescription   string                `json:"site_description,omitempty"`
	AdminEmail        string                `json:"admin_email,omitempty"`
	ProductFamilyCode string                `json:"product_family_code"`
	ProductVersion    string                `json:"product_version"`
	Presentation      config.Presentation   `json:"presentation"`
	Privacy           config.Privacy        `json:"privacy"`
	RoleMap           map[string][]string   `json:"role_map,omitempty"`
	KID               string                `json:"kid,omitempty"`
	HasPrivateKey     bool                  `json:"has_private_key"`
	OfferStorage      bool                  `json:"offer_storage"`
	Endpoints         lti.PlatformEndpoints `json:"endpoints"`
}

func viewOf(t *tool.Tool, s config.Settings) ToolView {
	res := tool.ResolveVersion(*t)
	rec, _ := tool.Encode(*t)
	v := ToolView{
		ID:               t.ID,
		Scope:            t.Scope,
		Code:             t.Code,
		Name:             t.Name,
		Status:           rec.Status,
		Enabled:          t.Enabled,
		DebugMode:        t.DebugMode,
		LTIVersion:       res.Version.String(),
		SignatureMethod:  string(res.SignatureMethod),
		CanBeEnabled:     tool.CanBeEnabled(*t, s),
		MessageURL:       t.MessageURL,
		UseContentItem:   t.UseContentItem,
		ContentItemURL:   t.ContentItemURL,
		Key:              t.Key,
		HasSecret:        t.Secret != "",
		InitiateLoginURL: t.InitiateLoginURL,
		RedirectionURIs:  t.RedirectionURIs,
		JKU:              t.JKU,
		RSAKey:           t.RSAKey,
		Settings:         t.Settings,
		Created:          t.Created,
		Modified:         t.Updated,
	}
	if v.Settings == nil {
		v.Settings = map[string]string{}
	}
	if !t.LastAccess.IsZero() {
		v.LastAccess = t.LastAccess.UTC().Format("2006-01-02")
	}
	return v
}

func settingsView(s config.Settings) SettingsView {
	return SettingsView{
		Debug:             s.Debug,
		PlatformGUID:      s.PlatformGUID,
		SiteURL:           s.SiteURL,
		SiteName:          s.SiteName,
		SiteDescription:   s.SiteDescription,
		AdminEmail:        s.AdminEmail,
		ProductFamilyCode: s.ProductFamilyCode,
		ProductVersion:    s.ProductVersion,
		Presentation:      s.Presentation,
		Privacy:           s.Privacy,
		RoleMap:           s.RoleMap,
		KID:               s.KID,
		HasPrivateKey:     strings.TrimSpace(s.PrivateKey) != "",
		OfferStorage:      s.OfferStorage,
		Endpoints:         lti.Endpoints(s),
	}
}

// apply copies req onto t. Settings replace the open settings wholesale;
// a custom setting given with CRLF line breaks is stored entity-encoded.
func apply(t *tool.Tool, req ToolReq) {
	if sc := tool.Scope(strings.TrimSpace(req.Scope)); sc.Valid() {
		t.Scope = sc
	}
	t.Code = req.Code
	t.Name = strings.TrimSpace(req.Name)
	t.Enabled = req.Enabled
	t.DebugMode = req.DebugMode
	t.MessageURL = strings.TrimSpace(req.MessageURL)
	t.UseContentItem = req.UseContentItem
	t.ContentItemURL = strings.TrimSpace(req.ContentItemURL)
	t.Key = strings.TrimSpace(req.Key)
	if s := strings.TrimSpace(req.Secret); s != "" || t.ID == 0 {
		t.Secret = s
	}
	t.InitiateLoginURL = strings.TrimSpace(req.InitiateLoginURL)
	t.RedirectionURIs = trimAll(req.RedirectionURIs)
	t.JKU = strings.TrimSpace(req.JKU)
	t.RSAKey = strings.TrimSpace(req.RSAKey)
	if req.Settings != nil {
		t.Settings = map[string]string{}
		for k, v := range req.Settings {
			if k = strings.TrimSpace(k); k != "" {
				t.SetSetting(k, strings.TrimSpace(v))
			}
		}
		if c := t.Settings[tool.SettingCustom]; c != "" {
			t.Settings[tool.SettingCustom] = strings.ReplaceAll(c, "\r\n", "&#13;&#10;")
		}
	}
}
