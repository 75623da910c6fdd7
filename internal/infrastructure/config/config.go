package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Site        SiteConfig
	Sandbox     SandboxConfig
	HTTP        HTTPConfig
	Cache       CacheConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
	Preferences PreferencesConfig
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// SiteConfig describes the comic site being read.
type SiteConfig struct {
	BaseURL       string `envconfig:"SITE_BASE_URL" default:"https://readcomiconline.li"`
	UserAgent     string `envconfig:"SITE_USER_AGENT" default:"Mozilla/5.0 (Windows NT 6.3; WOW64)"`
	BootstrapPath string `envconfig:"BOOTSTRAP_PATH" default:"/Scripts/rguard.min.js"`
	PayloadMarker string `envconfig:"PAYLOAD_MARKER" default:"beau"`
}

// SandboxConfig holds script sandbox limits.
type SandboxConfig struct {
	Timeout        time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s"`
	PoolSize       int           `envconfig:"SANDBOX_POOL_SIZE" default:"4"`
	MaxCallStack   int           `envconfig:"SANDBOX_STACK" default:"1024"`
	AcquireTimeout time.Duration `envconfig:"SANDBOX_ACQUIRE_TIMEOUT" default:"10s"`
}

// HTTPConfig holds outbound HTTP client configuration.
type HTTPConfig struct {
	Timeout           time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	Retries           int           `envconfig:"HTTP_RETRIES" default:"3"`
	RequestsPerSecond float64       `envconfig:"HTTP_RPS" default:"2"`
}

// CacheConfig holds on-disk script cache configuration.
type CacheConfig struct {
	Enabled    bool          `envconfig:"CACHE_ENABLED" default:"true"`
	Dir        string        `envconfig:"CACHE_DIR" default:"/tmp/readcomic-cache"`
	PruneAfter time.Duration `envconfig:"CACHE_PRUNE_AFTER" default:"336h"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// PreferencesConfig locates the reader preferences file.
type PreferencesConfig struct {
	File string `envconfig:"PREFERENCES_FILE" default:"/tmp/readcomic-cache/preferences.toml"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Site: SiteConfig{
			BaseURL:       "https://readcomiconline.li",
			UserAgent:     "Mozilla/5.0 (Windows NT 6.3; WOW64)",
			BootstrapPath: "/Scripts/rguard.min.js",
			PayloadMarker: "beau",
		},
		Sandbox: SandboxConfig{
			Timeout:        5 * time.Second,
			PoolSize:       4,
			MaxCallStack:   1024,
			AcquireTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:           30 * time.Second,
			Retries:           3,
			RequestsPerSecond: 2,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Dir:        "/tmp/readcomic-cache",
			PruneAfter: 14 * 24 * time.Hour,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
		Preferences: PreferencesConfig{
			File: "/tmp/readcomic-cache/preferences.toml",
		},
	}
}

// Validate checks values envconfig cannot check on its own.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid SITE_BASE_URL %q", c.Site.BaseURL)
	}
	if !strings.HasPrefix(c.Site.BootstrapPath, "/") {
		return fmt.Errorf("BOOTSTRAP_PATH must start with /: %q", c.Site.BootstrapPath)
	}
	if c.Site.PayloadMarker == "" {
		return fmt.Errorf("PAYLOAD_MARKER must not be empty")
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("SANDBOX_TIMEOUT must be positive")
	}
	if c.Sandbox.PoolSize <= 0 {
		return fmt.Errorf("SANDBOX_POOL_SIZE must be positive")
	}
	return nil
}

// BootstrapURL returns the default location of the anti-tamper script.
func (s SiteConfig) BootstrapURL() string {
	return strings.TrimRight(s.BaseURL, "/") + s.BootstrapPath
}
