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
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Expand  ExpandConfig  `mapstructure:"expand"`
	Chain   ChainConfig   `mapstructure:"chain"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlConfig governs the crawl matrix behavior.
type CrawlConfig struct {
	Regions           []string `mapstructure:"regions"`
	PopularityCeiling int      `mapstructure:"popularity_ceiling"`
	RegionDelayMs     int      `mapstructure:"region_delay_ms"`
	ProgressEvery     int      `mapstructure:"progress_every"`
	ContactTimeoutSec int      `mapstructure:"contact_timeout_seconds"`
}

// CatalogConfig configures the catalog API client.
type CatalogConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	SearchLimit      int    `mapstructure:"search_limit"`
}

// ProviderKeyConfig pairs one API credential with its model rotation.
type ProviderKeyConfig struct {
	APIKey string   `mapstructure:"api_key"`
	Models []string `mapstructure:"models"`
}

// ExpandConfig governs term expansion and provider rotation.
type ExpandConfig struct {
	Keys              []ProviderKeyConfig `mapstructure:"keys"`
	MaxTerms          int                 `mapstructure:"max_terms"`
	AttemptTimeoutSec int                 `mapstructure:"attempt_timeout_seconds"`
	PromptTemplate    string              `mapstructure:"prompt_template"`
}

// ChainConfig governs the auto-chaining work queue controller.
type ChainConfig struct {
	PauseSeconds int `mapstructure:"pause_seconds"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// StorageConfig selects where export artifacts land.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DefaultRegions is the region sweep used when none is configured.
var DefaultRegions = []string{
	"us", "gb", "ca", "au", "in", "de", "fr", "es", "it", "br",
	"mx", "nl", "se", "no", "pl", "tr", "id", "ph", "ng", "za",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("APPSCOUT")
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
	v.SetDefault("crawl.regions", DefaultRegions)
	v.SetDefault("crawl.popularity_ceiling", 1)
	v.SetDefault("crawl.region_delay_ms", 1500)
	v.SetDefault("crawl.progress_every", 30)
	v.SetDefault("crawl.contact_timeout_seconds", 5)
	v.SetDefault("catalog.user_agent", "appscout-bot/0.1")
	v.SetDefault("catalog.timeout_seconds", 15)
	v.SetDefault("catalog.max_retries", 3)
	v.SetDefault("catalog.backoff_initial_ms", 250)
	v.SetDefault("catalog.backoff_max_ms", 5000)
	v.SetDefault("catalog.search_limit", 30)
	v.SetDefault("expand.max_terms", 100)
	v.SetDefault("expand.attempt_timeout_seconds", 20)
	v.SetDefault("chain.pause_seconds", 2)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_dir", "exports")
	v.SetDefault("storage.prefix", "leads")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Crawl.Regions) == 0 {
		return fmt.Errorf("crawl.regions must not be empty")
	}
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url must be set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for i, key := range c.Expand.Keys {
		if key.APIKey == "" {
			return fmt.Errorf("expand.keys[%d].api_key must be set", i)
		}
		if len(key.Models) == 0 {
			return fmt.Errorf("expand.keys[%d].models must not be empty", i)
		}
	}
	switch c.Storage.Provider {
	case "local", "gcs", "noop":
	default:
		return fmt.Errorf("storage.provider must be one of local, gcs, noop")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when provider is gcs")
	}
	return nil
}

// RegionDelay converts the configured pacing delay into a duration.
func (c Config) RegionDelay() time.Duration {
	return time.Duration(c.Crawl.RegionDelayMs) * time.Millisecond
}

// ChainPause converts the configured chain pause into a duration.
func (c Config) ChainPause() time.Duration {
	return time.Duration(c.Chain.PauseSeconds) * time.Second
}
