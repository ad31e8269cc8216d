// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	DB       DBConfig       `mapstructure:"db"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the Postgres cache.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// CatalogConfig identifies the external parts catalog.
type CatalogConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Product string `mapstructure:"product"`
	Archive string `mapstructure:"archive"`
}

// BrowserConfig governs the shared headless browser session.
type BrowserConfig struct {
	Headless       bool    `mapstructure:"headless"`
	NoSandbox      bool    `mapstructure:"no_sandbox"`
	UserAgent      string  `mapstructure:"user_agent"`
	NavTimeoutSec  int     `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSec int     `mapstructure:"wait_timeout_seconds"`
	MaxQPS         float64 `mapstructure:"max_qps"`
}

// ProbeConfig controls the static HTTP probe attempted before the browser.
type ProbeConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	TimeoutSec int  `mapstructure:"timeout_seconds"`
}

// NotifyConfig holds Pub/Sub metadata for resolved-VID notifications.
type NotifyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// SnapshotConfig controls archiving of rendered pages from failed lookups.
type SnapshotConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"` // "local" or "gcs"
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VIDLOOKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8003)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.table", "vid_cache")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("catalog.base_url", "https://www.realoem.com")
	v.SetDefault("catalog.product", "P")
	v.SetDefault("catalog.archive", "0")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.user_agent", "vid-lookup/0.1")
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.wait_timeout_seconds", 30)
	v.SetDefault("browser.max_qps", 1)
	v.SetDefault("probe.enabled", true)
	v.SetDefault("probe.timeout_seconds", 15)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.backend", "local")
	v.SetDefault("snapshot.base_dir", "snapshots")
	v.SetDefault("snapshot.prefix", "misses")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if c.Browser.NavTimeoutSec <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Browser.WaitTimeoutSec <= 0 {
		return fmt.Errorf("browser.wait_timeout_seconds must be > 0")
	}
	if c.Probe.Enabled && c.Probe.TimeoutSec <= 0 {
		return fmt.Errorf("probe.timeout_seconds must be > 0 when probe is enabled")
	}
	if c.Notify.Enabled && (c.Notify.ProjectID == "" || c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic must be set when notify is enabled")
	}
	if c.Snapshot.Enabled {
		switch c.Snapshot.Backend {
		case "local":
			if c.Snapshot.BaseDir == "" {
				return fmt.Errorf("snapshot.base_dir must be set for the local backend")
			}
		case "gcs":
			if c.Snapshot.GCSBucket == "" {
				return fmt.Errorf("snapshot.gcs_bucket must be set for the gcs backend")
			}
		default:
			return fmt.Errorf("snapshot.backend must be \"local\" or \"gcs\"")
		}
	}
	return nil
}

// NavTimeout returns the navigation budget as a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// WaitTimeout returns the element-wait ceiling as a duration.
func (c BrowserConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSec) * time.Second
}

// Timeout returns the probe request budget as a duration.
func (c ProbeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
