package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Normalize.
const (
	DefaultListen          = "127.0.0.1:8080"
	DefaultSiteDomain      = "localhost:8080"
	DefaultTimezone        = "America/New_York"
	DefaultHorizonYears    = 10
	DefaultRefreshCron     = "15 0 * * *"
	DefaultDatabaseDriver  = "sqlite"
	DefaultDatabaseDSN     = "/var/lib/myhebrewdates/hebcal.db"
	DefaultTokenTTLMinutes = 24 * 60
)

// DatabaseConfig selects the gorm dialect and its DSN.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is a file path for sqlite or a libpq connection string for postgres.
	DSN string `yaml:"dsn" json:"dsn"`
}

// AuthConfig holds the owner API token settings.
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret" json:"-"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes" json:"token_ttl_minutes"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// SiteDomain is the public host used to build feed and webcal URLs
	// (e.g. "www.myhebrewdates.com").
	SiteDomain string `yaml:"site_domain" json:"site_domain"`

	// DefaultTimezone is used for new calendars that do not name one.
	DefaultTimezone string `yaml:"default_timezone" json:"default_timezone"`

	// HorizonYears is how many Hebrew years of occurrences each feed carries,
	// starting with the current one.
	HorizonYears int `yaml:"horizon_years" json:"horizon_years"`

	// RefreshCron is the cron schedule for regenerating stale cached feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Database DatabaseConfig `yaml:"database" json:"database"`
	Auth     AuthConfig     `yaml:"auth" json:"auth"`
}

// DefaultConfig returns an in-memory default configuration. The JWT secret
// is random per call so that a first-run config file never ships a shared key.
func DefaultConfig() *Config {
	return &Config{
		Listen:          DefaultListen,
		SiteDomain:      DefaultSiteDomain,
		DefaultTimezone: DefaultTimezone,
		HorizonYears:    DefaultHorizonYears,
		RefreshCron:     DefaultRefreshCron,
		LogLevel:        "info",
		Database: DatabaseConfig{
			Driver: DefaultDatabaseDriver,
			DSN:    DefaultDatabaseDSN,
		},
		Auth: AuthConfig{
			JWTSecret:       uuid.NewString() + uuid.NewString(),
			TokenTTLMinutes: DefaultTokenTTLMinutes,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.SiteDomain == "" {
		c.SiteDomain = DefaultSiteDomain
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		c.DefaultTimezone = DefaultTimezone
	}
	if c.HorizonYears <= 0 {
		c.HorizonYears = DefaultHorizonYears
	}
	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
		// ok
	default:
		c.Database.Driver = DefaultDatabaseDriver
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = DefaultDatabaseDSN
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		c.Auth.TokenTTLMinutes = DefaultTokenTTLMinutes
	}
}

// TokenTTL is the lifetime of issued owner API tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//   - reject an empty JWT secret
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("config: auth.jwt_secret is empty")
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".myhebrewdates-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
