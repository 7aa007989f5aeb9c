package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mind-engage/lti-platform/internal/auth"
	platform "github.com/mind-engage/lti-platform/pkg/platform/config"
)

// EnvPrefix prefixes every bound environment variable.
const EnvPrefix = "PLATFORMD_"

type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Database DatabaseConfig    `mapstructure:"database"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Log      LogConfig         `mapstructure:"log"`
	Admin    AdminConfig       `mapstructure:"admin"`
	Session  SessionConfig     `mapstructure:"session"`
	Users    []auth.Account    `mapstructure:"users"`
	Platform platform.Settings `mapstructure:"platform"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`

	// PublicURL is where this process is reachable; platform.site_url
	// defaults to it.
	PublicURL   string   `mapstructure:"public_url"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite|postgres
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig selects the login state backend. No address means in-memory.
type RedisConfig struct {
	Mode       string   `mapstructure:"mode"` // single|sentinel|cluster
	Addr       string   `mapstructure:"addr"`
	Addrs      []string `mapstructure:"addrs"`
	MasterName string   `mapstructure:"master_name"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
	Prefix     string   `mapstructure:"prefix"`
}

// Enabled reports whether any Redis address is configured.
func (r RedisConfig) Enabled() bool { return len(r.Addresses()) > 0 }

// Addresses returns Addrs, or Addr when Addrs is empty.
func (r RedisConfig) Addresses() []string {
	if len(r.Addrs) > 0 {
		return r.Addrs
	}
	if r.Addr != "" {
		return []string{r.Addr}
	}
	return nil
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

type AdminConfig struct {
	User         string `mapstructure:"user"`
	PasswordHash string `mapstructure:"password_hash"` // bcrypt
}

type SessionConfig struct {
	Secret string        `mapstructure:"secret"`
	Cookie string        `mapstructure:"cookie"`
	TTL    time.Duration `mapstructure:"ttl"`
	Secure bool          `mapstructure:"secure"`
}

var envKeys = []string{
	"server.addr",
	"server.read_header_timeout",
	"server.public_url",
	"server.cors_origins",
	"database.driver",
	"database.dsn",
	"redis.mode",
	"redis.addr",
	"redis.addrs",
	"redis.master_name",
	"redis.password",
	"redis.db",
	"redis.prefix",
	"log.development",
	"admin.user",
	"admin.password_hash",
	"session.secret",
	"session.cookie",
	"session.ttl",
	"session.secure",
	"platform.debug",
	"platform.platform_guid",
	"platform.site_url",
	"platform.site_name",
	"platform.site_description",
	"platform.admin_email",
	"platform.product_family_code",
	"platform.product_version",
	"platform.deployment_id",
	"platform.kid",
	"platform.private_key",
	"platform.private_key_file",
	"platform.offer_storage",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("redis.prefix", "lti-platform:login:")
	v.SetDefault("admin.user", "admin")
	v.SetDefault("session.cookie", "lti_platform_session")
	v.SetDefault("session.ttl", 8*time.Hour)
	v.SetDefault("platform.site_name", "LTI Platform")
	v.SetDefault("platform.product_family_code", "lti-platform")
	v.SetDefault("platform.product_version", "1.0.0")
	v.SetDefault("platform.deployment_id", "1")
	v.SetDefault("platform.presentation.target", "window")
	v.SetDefault("platform.presentation.width", "")
	v.SetDefault("platform.presentation.height", "")
	v.SetDefault("platform.privacy.send_user_name", false)
	v.SetDefault("platform.privacy.send_user_id", false)
	v.SetDefault("platform.privacy.send_user_email", false)
	v.SetDefault("platform.privacy.send_user_role", true)
	v.SetDefault("platform.privacy.send_user_username", false)
}

// EnvName is the environment variable bound to a config key, e.g.
// "redis.addr" -> PLATFORMD_REDIS_ADDR.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads defaults, then the optional config file at path (a missing file
// is tolerated), then PLATFORMD_* environment variables, and validates the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for _, k := range envKeys {
		if err := v.BindEnv(k, EnvName(k)); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.normalize()
	if err := cfg.loadPrivateKey(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Server.CORSOrigins = splitCSV(c.Server.CORSOrigins)
	c.Redis.Addrs = splitCSV(c.Redis.Addrs)
	c.Server.PublicURL = strings.TrimSuffix(strings.TrimSpace(c.Server.PublicURL), "/")
	if strings.TrimSpace(c.Platform.SiteURL) == "" {
		c.Platform.SiteURL = c.Server.PublicURL
	}
	c.Platform.SiteURL = strings.TrimSuffix(strings.TrimSpace(c.Platform.SiteURL), "/")
}

func (c *Config) loadPrivateKey() error {
	p := &c.Platform
	if strings.TrimSpace(p.PrivateKey) != "" || p.PrivateKeyFile == "" {
		return nil
	}
	b, err := os.ReadFile(p.PrivateKeyFile)
	if err != nil {
		return fmt.Errorf("config: read private key: %w", err)
	}
	p.PrivateKey = string(b)
	return nil
}

// Validate checks the fields the service cannot start without.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "sqlite3", "postgres", "pg", "pgx":
	default:
		return fmt.Errorf("config: unsupported database.driver %q (expected sqlite|postgres)", c.Database.Driver)
	}
	if c.Platform.SiteURL == "" {
		return fmt.Errorf("config: platform.site_url or server.public_url is required (check %s)", EnvName("server.public_url"))
	}
	if !strings.HasPrefix(c.Platform.SiteURL, "http://") && !strings.HasPrefix(c.Platform.SiteURL, "https://") {
		return fmt.Errorf("config: platform.site_url must be an http(s) URL, got %q", c.Platform.SiteURL)
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("config: session.secret is required (check %s)", EnvName("session.secret"))
	}
	if c.Redis.Mode == "sentinel" && c.Redis.MasterName == "" {
		return errors.New("config: redis.master_name is required in sentinel mode")
	}
	if (c.Platform.KID == "") != (strings.TrimSpace(c.Platform.PrivateKey) == "") {
		return errors.New("config: platform.kid and platform.private_key must be set together")
	}
	return nil
}

func splitCSV(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
