// Package config defines the top-level configuration for the booksim engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BOOKSIM_* environment variables.
type Config struct {
	Feed      FeedConfig      `toml:"feed"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Pricing   PricingConfig   `toml:"pricing"`
	Liquidity LiquidityConfig `toml:"liquidity"`
	Candles   CandlesConfig   `toml:"candles"`
	Sim       SimConfig       `toml:"sim"`
	Demo      DemoConfig      `toml:"demo"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// FeedConfig holds the depth/ticker feed endpoint and subscriptions.
type FeedConfig struct {
	WsURL          string   `toml:"ws_url"`
	InstrumentIDs  []string `toml:"instrument_ids"`
	ReconnectDelay duration `toml:"reconnect_delay"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the simulated
// trade history store.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// PricingConfig holds the reference order sizes for market-context estimates.
type PricingConfig struct {
	SmallOrderSize  float64 `toml:"small_order_size"`
	MediumOrderSize float64 `toml:"medium_order_size"`
	LargeOrderSize  float64 `toml:"large_order_size"`
}

// LiquidityConfig holds health thresholds and quality-score references.
type LiquidityConfig struct {
	MaxHealthySpreadBps float64 `toml:"max_healthy_spread_bps"`
	MinHealthyDepth     float64 `toml:"min_healthy_depth"`
	ReferenceSize       float64 `toml:"reference_size"`
	ReferenceLevels     int     `toml:"reference_levels"`
}

// CandlesConfig lists the bar granularities to aggregate; one aggregator
// instance runs per granularity per instrument.
type CandlesConfig struct {
	Granularities []duration `toml:"granularities"`
}

// SimConfig controls the execution simulator.
type SimConfig struct {
	PersistHistory bool `toml:"persist_history"`
}

// DemoConfig shapes the synthetic book used by demo mode.
type DemoConfig struct {
	InstrumentID    string   `toml:"instrument_id"`
	Mid             float64  `toml:"mid"`
	SpreadBps       float64  `toml:"spread_bps"`
	Levels          int      `toml:"levels"`
	BaseSize        float64  `toml:"base_size"`
	SizeGrowth      float64  `toml:"size_growth"`
	LevelSpacingBps float64  `toml:"level_spacing_bps"`
	ImbalancePct    float64  `toml:"imbalance_pct"`
	TickInterval    duration `toml:"tick_interval"`
}

// duration wraps time.Duration so TOML files can use "30s" / "1m" strings.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// GranularityDurations returns the configured candle granularities as
// time.Durations.
func (c CandlesConfig) GranularityDurations() []time.Duration {
	out := make([]time.Duration, 0, len(c.Granularities))
	for _, g := range c.Granularities {
		out = append(out, g.Duration)
	}
	return out
}

// Defaults returns the built-in configuration used when fields are absent
// from the TOML file.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			ReconnectDelay: duration{2 * time.Second},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Enabled:      false,
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 4,
			PoolMinConns: 0,
		},
		Pricing: PricingConfig{
			SmallOrderSize:  0.1,
			MediumOrderSize: 1,
			LargeOrderSize:  10,
		},
		Liquidity: LiquidityConfig{
			MaxHealthySpreadBps: 20,
			MinHealthyDepth:     1,
			ReferenceSize:       10,
			ReferenceLevels:     10,
		},
		Candles: CandlesConfig{
			Granularities: []duration{{time.Minute}, {5 * time.Minute}},
		},
		Sim: SimConfig{
			PersistHistory: false,
		},
		Demo: DemoConfig{
			InstrumentID:    "BTC-USD",
			Mid:             45000,
			SpreadBps:       2,
			Levels:          20,
			BaseSize:        0.5,
			SizeGrowth:      1.1,
			LevelSpacingBps: 1,
			TickInterval:    duration{250 * time.Millisecond},
		},
		Mode:     "demo",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live": true,
	"demo": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, demo)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.EqualFold(c.Mode, "live") {
		if c.Feed.WsURL == "" {
			errs = append(errs, "feed: ws_url must not be empty in live mode")
		}
		if len(c.Feed.InstrumentIDs) == 0 {
			errs = append(errs, "feed: instrument_ids must not be empty in live mode")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}
	if c.Sim.PersistHistory && !c.Postgres.Enabled {
		errs = append(errs, "sim: persist_history requires postgres.enabled")
	}

	if c.Pricing.SmallOrderSize <= 0 || c.Pricing.MediumOrderSize <= 0 || c.Pricing.LargeOrderSize <= 0 {
		errs = append(errs, "pricing: reference order sizes must be > 0")
	} else if c.Pricing.SmallOrderSize > c.Pricing.MediumOrderSize || c.Pricing.MediumOrderSize > c.Pricing.LargeOrderSize {
		errs = append(errs, "pricing: reference order sizes must be ascending (small <= medium <= large)")
	}

	if c.Liquidity.MaxHealthySpreadBps <= 0 {
		errs = append(errs, "liquidity: max_healthy_spread_bps must be > 0")
	}
	if c.Liquidity.MinHealthyDepth < 0 {
		errs = append(errs, "liquidity: min_healthy_depth must be >= 0")
	}
	if c.Liquidity.ReferenceSize <= 0 {
		errs = append(errs, "liquidity: reference_size must be > 0")
	}
	if c.Liquidity.ReferenceLevels < 1 {
		errs = append(errs, "liquidity: reference_levels must be >= 1")
	}

	if len(c.Candles.Granularities) == 0 {
		errs = append(errs, "candles: at least one granularity is required")
	}
	for _, g := range c.Candles.Granularities {
		if g.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("candles: granularity %v must be positive", g.Duration))
		}
	}

	if strings.EqualFold(c.Mode, "demo") {
		if c.Demo.Mid <= 0 {
			errs = append(errs, "demo: mid must be > 0")
		}
		if c.Demo.Levels < 1 {
			errs = append(errs, "demo: levels must be >= 1")
		}
		if c.Demo.TickInterval.Duration <= 0 {
			errs = append(errs, "demo: tick_interval must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
