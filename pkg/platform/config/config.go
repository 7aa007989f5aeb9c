package config

import (
	"errors"
	"strings"
	"sync"
)

// Presentation holds the default launch presentation for new tools.
type Presentation struct {
	Target string `mapstructure:"target"` // window|popup|iframe|embed|urlonly
	Width  string `mapstructure:"width"`
	Height string `mapstructure:"height"`
}

// Privacy holds the default privacy toggles for new tools.
type Privacy struct {
	SendUserName     bool `mapstructure:"send_user_name"`
	SendUserID       bool `mapstructure:"send_user_id"`
	SendUserEmail    bool `mapstructure:"send_user_email"`
	SendUserRole     bool `mapstructure:"send_user_role"`
	SendUserUsername bool `mapstructure:"send_user_username"`
}

// Settings are the platform-wide options shared by every tool. One value is
// held per process by a Provider.
type Settings struct {
	Debug bool `mapstructure:"debug"`
	// Uninstall allows platformd -uninstall to delete every tool document.
	Uninstall    bool   `mapstructure:"uninstall"`
	PlatformGUID string `mapstructure:"platform_guid"`

	// SiteURL is the platform issuer and the base of every launch and return URL.
	SiteURL           string `mapstructure:"site_url"`
	SiteName          string `mapstructure:"site_name"`
	SiteDescription   string `mapstructure:"site_description"`
	AdminEmail        string `mapstructure:"admin_email"`
	ProductFamilyCode string `mapstructure:"product_family_code"`
	ProductVersion    string `mapstructure:"product_version"`
	DeploymentID      string `mapstructure:"deployment_id"`

	Presentation Presentation `mapstructure:"presentation"`
	Privacy      Privacy      `mapstructure:"privacy"`

	// RoleMap maps a site role (e.g. "editor") to LTI role tokens
	// (e.g. ["instructor"]). Per-tool role_<role> settings take precedence.
	RoleMap map[string][]string `mapstructure:"role_map"`

	KID            string `mapstructure:"kid"`
	PrivateKey     string `mapstructure:"private_key"` // PEM
	PrivateKeyFile string `mapstructure:"private_key_file"`
	OfferStorage   bool   `mapstructure:"offer_storage"`
}

// HasSigningKey reports whether both a key id and a private key are configured.
func (s Settings) HasSigningKey() bool {
	return strings.TrimSpace(s.KID) != "" && strings.TrimSpace(s.PrivateKey) != ""
}

// Issuer is the platform issuer (the site URL without trailing slash).
func (s Settings) Issuer() string {
	return strings.TrimSuffix(strings.TrimSpace(s.SiteURL), "/")
}

// Provider holds the current Settings. Values are loaded once and replaced
// only by an explicit Refresh or Set.
type Provider struct {
	mu   sync.RWMutex
	cur  Settings
	load func() (Settings, error)
}

// NewProvider returns a provider with fixed settings.
func NewProvider(s Settings) *Provider {
	return &Provider{cur: s}
}

// NewLoadingProvider calls load once immediately and again on every Refresh.
func NewLoadingProvider(load func() (Settings, error)) (*Provider, error) {
	if load == nil {
		return nil, errors.New("config: nil settings loader")
	}
	p := &Provider{load: load}
	if err := p.Refresh(); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a snapshot of the current settings.
func (p *Provider) Get() Settings {
	if p == nil {
		return Settings{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cur
}

// Set replaces the current settings.
func (p *Provider) Set(s Settings) {
	p.mu.Lock()
	p.cur = s
	p.mu.Unlock()
}

// Refresh reloads settings through the loader. Providers built with
// NewProvider have no loader and Refresh is a no-op.
func (p *Provider) Refresh() error {
	if p.load == nil {
		return nil
	}
	s, err := p.load()
	if err != nil {
		return err
	}
	p.Set(s)
	return nil
}
