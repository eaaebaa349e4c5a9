// Package config defines all configuration for the token radar.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// endpoint URLs and secrets overridable via RADAR_* environment variables.
// Every field has a compiled default so the pipeline runs with no file at all.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Chain     string          `mapstructure:"chain"`
	API       APIConfig       `mapstructure:"api"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Store     StoreConfig     `mapstructure:"store"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// APIConfig holds the upstream endpoints and their request timeouts.
type APIConfig struct {
	ListingsURL     string        `mapstructure:"listings_url"`
	MetricsURL      string        `mapstructure:"metrics_url"`
	SSEURL          string        `mapstructure:"sse_url"`
	ListingsTimeout time.Duration `mapstructure:"listings_timeout"`
	MetricsTimeout  time.Duration `mapstructure:"metrics_timeout"`
	DetailsTimeout  time.Duration `mapstructure:"details_timeout"`

	// Rate limits per endpoint category (requests per second / burst).
	ListingsRPS   float64 `mapstructure:"listings_rps"`
	ListingsBurst int     `mapstructure:"listings_burst"`
	MetricsRPS    float64 `mapstructure:"metrics_rps"`
	MetricsBurst  int     `mapstructure:"metrics_burst"`
}

// DiscoveryConfig tunes the tracking pipeline's loops and lifecycle windows.
//
//   - PollInterval: listings feed cadence.
//   - RefreshInterval: background REST refresh cadence.
//   - ReconcileInterval: SSE leader reconciliation cadence.
//   - BatchSize / FanOut: metrics batching limits (addresses per batch,
//     concurrent requests per batch).
//   - FailedRetry: cool-off before a failed discovery address is retried.
//   - TokenTTL: eviction age for non-holder tokens.
//   - MonitorWindow: age within which tokens get background refreshes.
//   - SaveDebounce: minimum spacing between DB writes for one token.
//   - InterBatchPause: pause between metrics batches.
type DiscoveryConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	BatchSize         int           `mapstructure:"batch_size"`
	FanOut            int           `mapstructure:"fan_out"`
	FailedRetry       time.Duration `mapstructure:"failed_retry"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	MonitorWindow     time.Duration `mapstructure:"monitor_window"`
	SaveDebounce      time.Duration `mapstructure:"save_debounce"`
	InterBatchPause   time.Duration `mapstructure:"inter_batch_pause"`
}

// StreamConfig bounds the SSE connection manager.
type StreamConfig struct {
	MaxConnections int           `mapstructure:"max_connections"`
	Stagger        time.Duration `mapstructure:"stagger"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// StoreConfig selects the persistence backend. DatabaseURL non-empty means
// the remote Postgres backend; otherwise the embedded SQLite file at Path.
type StoreConfig struct {
	Path        string `mapstructure:"path"`
	DatabaseURL string `mapstructure:"database_url"`
}

// AlertConfig controls the outbound tier-3 announcement sink. An empty
// APIKey disables the sink; the announced flag still latches.
type AlertConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// Enabled reports whether the sink will actually send.
func (a AlertConfig) Enabled() bool { return a.APIKey != "" && a.URL != "" }

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the HTTP API server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides. A missing file
// is not an error: defaults keep the whole pipeline runnable.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file: run on defaults + env.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override endpoint/secret fields from env
	if u := os.Getenv("RADAR_DATABASE_URL"); u != "" {
		cfg.Store.DatabaseURL = u
	}
	if u := os.Getenv("RADAR_LISTINGS_URL"); u != "" {
		cfg.API.ListingsURL = u
	}
	if u := os.Getenv("RADAR_METRICS_URL"); u != "" {
		cfg.API.MetricsURL = u
	}
	if u := os.Getenv("RADAR_SSE_URL"); u != "" {
		cfg.API.SSEURL = u
	}
	if k := os.Getenv("RADAR_ALERT_API_KEY"); k != "" {
		cfg.Alert.APIKey = k
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chain", "sol")

	v.SetDefault("api.listings_url", "https://api.dexlist.io/latest/v1")
	v.SetDefault("api.metrics_url", "https://api.dexmetrics.io/v2")
	v.SetDefault("api.sse_url", "https://stream.dexmetrics.io/prices")
	v.SetDefault("api.listings_timeout", 10*time.Second)
	v.SetDefault("api.metrics_timeout", 10*time.Second)
	v.SetDefault("api.details_timeout", 15*time.Second)
	v.SetDefault("api.listings_rps", 2.0)
	v.SetDefault("api.listings_burst", 4)
	v.SetDefault("api.metrics_rps", 10.0)
	v.SetDefault("api.metrics_burst", 20)

	v.SetDefault("discovery.poll_interval", time.Second)
	v.SetDefault("discovery.refresh_interval", 15*time.Second)
	v.SetDefault("discovery.reconcile_interval", 5*time.Second)
	v.SetDefault("discovery.batch_size", 30)
	v.SetDefault("discovery.fan_out", 10)
	v.SetDefault("discovery.failed_retry", 5*time.Minute)
	v.SetDefault("discovery.token_ttl", 2*time.Hour)
	v.SetDefault("discovery.monitor_window", time.Hour)
	v.SetDefault("discovery.save_debounce", 5*time.Second)
	v.SetDefault("discovery.inter_batch_pause", time.Second)

	v.SetDefault("stream.max_connections", 10)
	v.SetDefault("stream.stagger", 500*time.Millisecond)
	v.SetDefault("stream.max_backoff", 60*time.Second)

	v.SetDefault("store.path", "data/radar.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.port", 8090)
}

// Validate checks value ranges that would otherwise break the loops.
func (c *Config) Validate() error {
	if c.Chain == "" {
		return fmt.Errorf("chain is required")
	}
	if c.Discovery.BatchSize <= 0 {
		return fmt.Errorf("discovery.batch_size must be > 0")
	}
	if c.Discovery.FanOut <= 0 {
		return fmt.Errorf("discovery.fan_out must be > 0")
	}
	if c.Stream.MaxConnections <= 0 {
		return fmt.Errorf("stream.max_connections must be > 0")
	}
	if c.Store.Path == "" && c.Store.DatabaseURL == "" {
		return fmt.Errorf("store.path or RADAR_DATABASE_URL is required")
	}
	return nil
}
