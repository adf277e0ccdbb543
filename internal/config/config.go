// Package config defines all configuration for the trading bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via CROSS_* environment variables.
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
	DryRun    bool            `mapstructure:"dry_run"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Feed      FeedConfig      `mapstructure:"feed"`
	History   HistoryConfig   `mapstructure:"history"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// BrokerConfig holds the brokerage REST endpoint and credentials.
type BrokerConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// FeedConfig holds the market-data websocket endpoint and an optional
// static watchlist subscribed at startup, alongside whatever the scanner
// discovers.
type FeedConfig struct {
	WSURL   string   `mapstructure:"ws_url"`
	APIKey  string   `mapstructure:"api_key"`
	Symbols []string `mapstructure:"symbols"`
}

// HistoryConfig configures the minute-aggregate REST fallback used to
// estimate volume when a symbol has too little streamed history.
//
// FallbackSymbol is the ticker queried for the estimate. The upstream
// behavior queries a fixed ticker regardless of the symbol being traded;
// the default preserves that.
type HistoryConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	FallbackSymbol string `mapstructure:"fallback_symbol"`
	LookbackHours  int    `mapstructure:"lookback_hours"`
}

// ScannerConfig controls the top-gainers detector that auto-subscribes
// symbols to the feed.
//
//   - TargetGrowthPct: minimum today's-change percentage to pick a symbol up.
//   - Validity: how long a detected symbol stays subscribed after its last hit.
//   - AllowedSymbolsFile: optional CSV of tradeable (non-OTC) symbols; empty
//     disables the filter.
type ScannerConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	TargetGrowthPct    float64       `mapstructure:"target_growth_pct"`
	Validity           time.Duration `mapstructure:"validity"`
	AllowedSymbolsFile string        `mapstructure:"allowed_symbols_file"`
}

// StrategyConfig tunes the crossover strategy.
//
//   - Formula: exit policy variant, one of F1 (sell at third intersection),
//     F3 (sell on decrease, third intersection as fallback), F4 (sell on
//     decrease after third intersection).
//   - BanMode: ban a symbol for BanDuration after a losing trade.
//   - WithCancel / CancelThreshold: cancel an unfilled entry once the price
//     rallies CancelThreshold above the requested price.
//   - ReserveBalance: buying power held back from sizing.
//   - MinBuyPrice/MaxBuyPrice: exclusive bounds on acceptable entry prices.
//   - VolumeDivisor: divisor applied to the 30-minute EMA-volume estimate.
//   - BuyingPowerFraction: fraction of allowed balance spent per entry.
type StrategyConfig struct {
	Formula             string        `mapstructure:"formula"`
	BanMode             bool          `mapstructure:"ban_mode"`
	WithCancel          bool          `mapstructure:"with_cancel"`
	CancelThreshold     float64       `mapstructure:"cancel_threshold"`
	ReserveBalance      float64       `mapstructure:"reserve_balance"`
	MinBuyPrice         float64       `mapstructure:"min_buy_price"`
	MaxBuyPrice         float64       `mapstructure:"max_buy_price"`
	Zone                string        `mapstructure:"zone"`
	VolumeDivisor       float64       `mapstructure:"volume_divisor"`
	BuyingPowerFraction float64       `mapstructure:"buying_power_fraction"`
	BanDuration         time.Duration `mapstructure:"ban_duration"`
}

// Name returns the strategy's journal namespace, e.g. "formula_1_ban_yes".
func (s StrategyConfig) Name() string {
	n := map[string]string{"F1": "formula_1", "F3": "formula_3", "F4": "formula_4"}[s.Formula]
	if s.BanMode {
		return n + "_ban_yes"
	}
	return n + "_ban_no"
}

// JournalConfig sets where trading journals and the ban list are persisted.
type JournalConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the fan-out websocket server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: CROSS_BROKER_KEY, CROSS_BROKER_SECRET,
// CROSS_FEED_KEY, CROSS_HISTORY_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CROSS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("strategy.formula", "F1")
	v.SetDefault("strategy.cancel_threshold", 0.03)
	v.SetDefault("strategy.reserve_balance", 25000)
	v.SetDefault("strategy.min_buy_price", 0.7)
	v.SetDefault("strategy.max_buy_price", 370.5)
	v.SetDefault("strategy.zone", "America/Los_Angeles")
	v.SetDefault("strategy.volume_divisor", 40)
	v.SetDefault("strategy.buying_power_fraction", 0.95)
	v.SetDefault("strategy.ban_duration", 30*24*time.Hour)
	v.SetDefault("history.fallback_symbol", "AAPL")
	v.SetDefault("history.lookback_hours", 72)
	v.SetDefault("scanner.poll_interval", 10*time.Second)
	v.SetDefault("scanner.validity", time.Hour)
	v.SetDefault("journal.data_dir", "buy_sell_data")
	v.SetDefault("logging.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// F3 arms the sell-on-decrease watcher right after the entry, so the
	// rally cancel is on unless explicitly disabled.
	if cfg.Strategy.Formula == "F3" && !v.IsSet("strategy.with_cancel") {
		cfg.Strategy.WithCancel = true
	}

	// Override sensitive fields from env
	if key := os.Getenv("CROSS_BROKER_KEY"); key != "" {
		cfg.Broker.APIKey = key
	}
	if secret := os.Getenv("CROSS_BROKER_SECRET"); secret != "" {
		cfg.Broker.APISecret = secret
	}
	if key := os.Getenv("CROSS_FEED_KEY"); key != "" {
		cfg.Feed.APIKey = key
	}
	if key := os.Getenv("CROSS_HISTORY_KEY"); key != "" {
		cfg.History.APIKey = key
		if cfg.Scanner.APIKey == "" {
			cfg.Scanner.APIKey = key
		}
	}
	if os.Getenv("CROSS_DRY_RUN") == "true" || os.Getenv("CROSS_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	switch c.Strategy.Formula {
	case "F1", "F3", "F4":
	default:
		return fmt.Errorf("strategy.formula must be one of: F1, F3, F4")
	}
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required")
	}
	if !c.DryRun && (c.Broker.APIKey == "" || c.Broker.APISecret == "") {
		return fmt.Errorf("broker credentials are required (set CROSS_BROKER_KEY / CROSS_BROKER_SECRET)")
	}
	if c.Feed.WSURL == "" {
		return fmt.Errorf("feed.ws_url is required")
	}
	if c.Strategy.CancelThreshold <= 0 {
		return fmt.Errorf("strategy.cancel_threshold must be > 0")
	}
	if c.Strategy.ReserveBalance < 0 {
		return fmt.Errorf("strategy.reserve_balance must be >= 0")
	}
	if c.Strategy.MinBuyPrice >= c.Strategy.MaxBuyPrice {
		return fmt.Errorf("strategy.min_buy_price must be below strategy.max_buy_price")
	}
	if c.Strategy.VolumeDivisor <= 0 {
		return fmt.Errorf("strategy.volume_divisor must be > 0")
	}
	if c.Strategy.BuyingPowerFraction <= 0 || c.Strategy.BuyingPowerFraction > 1 {
		return fmt.Errorf("strategy.buying_power_fraction must be in (0, 1]")
	}
	if c.Strategy.BanDuration <= 0 {
		return fmt.Errorf("strategy.ban_duration must be > 0")
	}
	if c.Journal.DataDir == "" {
		return fmt.Errorf("journal.data_dir is required")
	}
	return nil
}
