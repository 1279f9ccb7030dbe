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
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	// SourcesFile points at the YAML source catalog.
	SourcesFile string `mapstructure:"sources_file"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
}

// ScrapeConfig governs the fetch pipeline.
type ScrapeConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	AcceptLanguage string  `mapstructure:"accept_language"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxPerSource   int     `mapstructure:"max_per_source"`
	DomainQPS      float64 `mapstructure:"domain_qps"`
	// ExtraBlockedTitles extends the default title blocklist.
	ExtraBlockedTitles []string `mapstructure:"extra_blocked_titles"`
}

// HeadlessConfig configures the browser rendering strategy.
type HeadlessConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	NavTimeoutSec    int  `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs    int  `mapstructure:"settle_delay_ms"`
	BlockMediaAssets bool `mapstructure:"block_media_assets"`
}

// RelayConfig governs the upstream event-stream proxy.
type RelayConfig struct {
	UpstreamURL       string `mapstructure:"upstream_url"`
	MaxRetries        int    `mapstructure:"max_retries"`
	ConnectTimeoutSec int    `mapstructure:"connect_timeout_seconds"`
}

// StorageConfig sets paths and content types for article archiving.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("server.shutdown_seconds", 10)
	v.SetDefault("scrape.user_agent", "")
	v.SetDefault("scrape.accept_language", "en-US,en;q=0.9")
	v.SetDefault("scrape.timeout_seconds", 10)
	v.SetDefault("scrape.max_per_source", 10)
	v.SetDefault("scrape.domain_qps", 0)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_delay_ms", 2000)
	v.SetDefault("headless.block_media_assets", true)
	v.SetDefault("relay.max_retries", 3)
	v.SetDefault("relay.connect_timeout_seconds", 300)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "articles")
	v.SetDefault("storage.content_type", "application/json; charset=utf-8")
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("sources_file", "sources.yaml")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scrape.TimeoutSeconds <= 0 {
		return fmt.Errorf("scrape.timeout_seconds must be > 0")
	}
	if c.Scrape.MaxPerSource <= 0 {
		return fmt.Errorf("scrape.max_per_source must be > 0")
	}
	if c.Headless.Enabled && c.Headless.NavTimeoutSec <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	if c.Relay.MaxRetries < 0 {
		return fmt.Errorf("relay.max_retries must be >= 0")
	}
	switch c.Storage.Backend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	if c.Storage.Backend == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set for the local backend")
	}
	return nil
}

// ScrapeTimeout converts the scrape timeout into a duration.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scrape.TimeoutSeconds) * time.Second
}

// NavTimeout converts the headless navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// SettleDelay converts the post-navigation settle delay into a duration.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Headless.SettleDelayMs) * time.Millisecond
}

// RelayConnectTimeout converts the relay connect timeout into a duration.
func (c Config) RelayConnectTimeout() time.Duration {
	return time.Duration(c.Relay.ConnectTimeoutSec) * time.Second
}

// ShutdownGrace converts the server shutdown budget into a duration.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}
