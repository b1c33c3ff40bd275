// Package config defines all configuration for the market-channel logger.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// fields overridable via POLY_* environment variables.
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
	API       APIConfig       `mapstructure:"api"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Output    OutputConfig    `mapstructure:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// APIConfig holds Polymarket API endpoints.
type APIConfig struct {
	GammaBaseURL string `mapstructure:"gamma_base_url"`
	CLOBBaseURL  string `mapstructure:"clob_base_url"`
	WSMarketURL  string `mapstructure:"ws_market_url"`
}

// FeedConfig configures the single-asset market-channel subscriber.
//
//   - AssetID: the token ID to subscribe to. If empty, Discovery picks one.
//   - ReadTimeout: reconnect if no frame is read from the server within
//     this window.
//   - PingInterval: how often to send a PING text frame to keep the
//     connection alive.
//   - MaxReconnectWait: cap on exponential reconnect backoff.
//   - StaleBookTimeout: the book guard flags the feed unhealthy if no book
//     update has landed within this window.
type FeedConfig struct {
	AssetID          string        `mapstructure:"asset_id"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	MaxReconnectWait time.Duration `mapstructure:"max_reconnect_wait"`
	StaleBookTimeout time.Duration `mapstructure:"stale_book_timeout"`
	CompactRecords   bool          `mapstructure:"compact_records"`
}

// DiscoveryConfig controls how the logger picks an asset to subscribe to
// when FeedConfig.AssetID is empty. It polls the Gamma API and ranks
// candidate markets the same way the original bot ranked trading
// opportunities, but only to pick a token to log, never to trade.
type DiscoveryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MinLiquidity   float64       `mapstructure:"min_liquidity"`
	MinVolume24h   float64       `mapstructure:"min_volume_24h"`
	MinSpread      float64       `mapstructure:"min_spread"`
	MaxEndDateDays int           `mapstructure:"max_end_date_days"`
	ExcludeSlugs   []string      `mapstructure:"exclude_slugs"`
}

// OutputConfig sets where compressed session lines are durably appended,
// and where session checkpoints (pool/record counters) are persisted.
type OutputConfig struct {
	Path          string `mapstructure:"path"`
	CheckpointDir string `mapstructure:"checkpoint_dir"`
	JSONLWrapped  bool   `mapstructure:"jsonl_wrapped"` // wrap lines as {"t":...,"a":...,"c":...}
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the read-only status dashboard.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if asset := os.Getenv("POLY_ASSET_ID"); asset != "" {
		cfg.Feed.AssetID = asset
	}
	if out := os.Getenv("POLY_OUTPUT_PATH"); out != "" {
		cfg.Output.Path = out
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.API.WSMarketURL == "" {
		return fmt.Errorf("api.ws_market_url is required")
	}
	if c.Feed.AssetID == "" && !c.Discovery.Enabled {
		return fmt.Errorf("feed.asset_id is required when discovery.enabled is false")
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	if c.Feed.ReadTimeout <= 0 {
		return fmt.Errorf("feed.read_timeout must be > 0")
	}
	if c.Feed.PingInterval <= 0 {
		return fmt.Errorf("feed.ping_interval must be > 0")
	}
	if c.Discovery.Enabled && c.API.GammaBaseURL == "" {
		return fmt.Errorf("api.gamma_base_url is required when discovery.enabled is true")
	}
	return nil
}
