package revadops

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/umerfarooqlaghari/RevAdOps-sub000/articles"
)

const envPrefix = "REVADOPS_"

// SiteConfig holds all configuration for a RevAdOps site.
type SiteConfig struct {
	Name string `yaml:"name"` // Site name (default "RevAdOps")
	URL  string `yaml:"url"`  // Canonical URL (default "http://localhost:3000")

	Addr         string `yaml:"addr"`         // Listen address (default ":3000")
	DatabasePath string `yaml:"databasePath"` // SQLite path (default "data/revadops.db")

	AdminPassword string `yaml:"adminPassword"` // Required: admin login password
	SessionSecret string `yaml:"sessionSecret"` // Required: session encryption secret
	CookieSecure  bool   `yaml:"cookieSecure"`  // Set true for HTTPS

	// APIBaseURLs, when set, makes the article cache read through the public
	// API of another deployment, primary first. Empty means the local store.
	APIBaseURLs      []string      `yaml:"apiBaseUrls"`
	AttemptTimeout   time.Duration `yaml:"attemptTimeout"`   // Per base URL (default 2.5s)
	CacheMaxAge      time.Duration `yaml:"cacheMaxAge"`      // Article cache lifetime (default 30min, negative never expires)
	ReconcileTimeout time.Duration `yaml:"reconcileTimeout"` // Post-response revision check (default 5s)

	LoginAttempts int           `yaml:"loginAttempts"` // Failed logins per window (default 5)
	LoginWindow   time.Duration `yaml:"loginWindow"`   // default 1min
	ViewsPerIP    int           `yaml:"viewsPerIp"`    // View increments per IP and slug per window (default 1)
	ViewWindow    time.Duration `yaml:"viewWindow"`    // default 1h

	LogLevel  string `yaml:"logLevel"`  // debug, info, warn, error (default info)
	LogFormat string `yaml:"logFormat"` // json or console (default json)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "RevAdOps"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/revadops.db"
	}
	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = articles.DefaultAttemptTimeout
	}
	if c.CacheMaxAge == 0 {
		c.CacheMaxAge = articles.DefaultMaxAge
	}
	if c.ReconcileTimeout == 0 {
		c.ReconcileTimeout = 5 * time.Second
	}
	if c.LoginAttempts == 0 {
		c.LoginAttempts = 5
	}
	if c.LoginWindow == 0 {
		c.LoginWindow = time.Minute
	}
	if c.ViewsPerIP == 0 {
		c.ViewsPerIP = 1
	}
	if c.ViewWindow == 0 {
		c.ViewWindow = time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
}

// cacheMaxAge maps the config value onto articles.WithMaxAge, where zero
// means no expiry.
func (c SiteConfig) cacheMaxAge() time.Duration {
	if c.CacheMaxAge < 0 {
		return 0
	}
	return c.CacheMaxAge
}

func (c SiteConfig) validate() error {
	if c.AdminPassword == "" {
		return fmt.Errorf("revadops: AdminPassword is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("revadops: SessionSecret is required")
	}
	return nil
}

// LoadConfig reads a YAML config file, when path is not empty, and applies
// REVADOPS_* environment overrides. Unset values are defaulted by New.
func LoadConfig(path string) (SiteConfig, error) {
	var cfg SiteConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return SiteConfig{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return SiteConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return SiteConfig{}, err
	}
	return cfg, nil
}

func (c *SiteConfig) applyEnvOverrides() error {
	strs := map[string]*string{
		"NAME":           &c.Name,
		"URL":            &c.URL,
		"ADDR":           &c.Addr,
		"DATABASE_PATH":  &c.DatabasePath,
		"ADMIN_PASSWORD": &c.AdminPassword,
		"SESSION_SECRET": &c.SessionSecret,
		"LOG_LEVEL":      &c.LogLevel,
		"LOG_FORMAT":     &c.LogFormat,
	}
	for key, dst := range strs {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(envPrefix + "API_BASE_URLS"); v != "" {
		c.APIBaseURLs = nil
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				c.APIBaseURLs = append(c.APIBaseURLs, u)
			}
		}
	}
	if v := os.Getenv(envPrefix + "COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sCOOKIE_SECURE: %w", envPrefix, err)
		}
		c.CookieSecure = b
	}

	durations := map[string]*time.Duration{
		"ATTEMPT_TIMEOUT": &c.AttemptTimeout,
		"CACHE_MAX_AGE":   &c.CacheMaxAge,
	}
	for key, dst := range durations {
		if v := os.Getenv(envPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are registered.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithLogger replaces the logger built from LogLevel and LogFormat.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		a.Logger = l
	}
}

// WithArticleSource sets where the article cache loads from, overriding the
// choice made from APIBaseURLs.
func WithArticleSource(src articles.Source) Option {
	return func(a *App) {
		a.source = src
	}
}
