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
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	DB         DBConfig         `mapstructure:"db"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScanConfig governs pipeline behavior.
type ScanConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	ScreenshotBaseURL string `mapstructure:"screenshot_base_url"`
	ArchivePrefix     string `mapstructure:"archive_prefix"`
	EventTopic        string `mapstructure:"event_topic"`
}

// FetchConfig configures the page fetcher.
type FetchConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// CrawlerConfig governs deep-scan traversal.
type CrawlerConfig struct {
	DeepMaxPages       int `mapstructure:"deep_max_pages"`
	PageTimeoutSeconds int `mapstructure:"page_timeout_seconds"`
}

// ClassifierConfig lists the LLM backends in fallback order.
type ClassifierConfig struct {
	Backends []BackendConfig `mapstructure:"backends"`
}

// BackendConfig describes one OpenAI-compatible chat completion endpoint.
type BackendConfig struct {
	Name           string `mapstructure:"name"`
	Endpoint       string `mapstructure:"endpoint"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN                 string `mapstructure:"dsn"`
	Table               string `mapstructure:"table"`
	MaxConns            int    `mapstructure:"max_conns"`
	MinConns            int    `mapstructure:"min_conns"`
	ConnLifetimeMinutes int    `mapstructure:"conn_lifetime_minutes"`
}

// StorageConfig selects the raw-page snapshot backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for scan-event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITESLEUTH")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 90)
	v.SetDefault("scan.user_agent", "")
	v.SetDefault("scan.archive_prefix", "scans")
	v.SetDefault("scan.event_topic", "scan.completed")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("crawler.deep_max_pages", 25)
	v.SetDefault("crawler.page_timeout_seconds", 15)
	v.SetDefault("db.table", "scans")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Crawler.DeepMaxPages <= 0 {
		return fmt.Errorf("crawler.deep_max_pages must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if len(c.Classifier.Backends) == 0 {
		return fmt.Errorf("classifier.backends must list at least one backend")
	}
	for i, b := range c.Classifier.Backends {
		if b.Name == "" || b.Endpoint == "" || b.Model == "" {
			return fmt.Errorf("classifier.backends[%d] requires name, endpoint, and model", i)
		}
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	return nil
}

// FetchTimeout returns the single-fetch client timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// PageTimeout returns the per-page crawl fetch timeout.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Crawler.PageTimeoutSeconds) * time.Second
}

// RequestTimeout returns the end-to-end HTTP request budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
