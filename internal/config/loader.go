package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BOOKSIM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BOOKSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject connection secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "BOOKSIM_FEED_WS_URL")
	setStringSlice(&cfg.Feed.InstrumentIDs, "BOOKSIM_FEED_INSTRUMENT_IDS")
	setDuration(&cfg.Feed.ReconnectDelay, "BOOKSIM_FEED_RECONNECT_DELAY")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BOOKSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BOOKSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BOOKSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BOOKSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BOOKSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BOOKSIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BOOKSIM_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "BOOKSIM_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "BOOKSIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BOOKSIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BOOKSIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BOOKSIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BOOKSIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BOOKSIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BOOKSIM_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BOOKSIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BOOKSIM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BOOKSIM_POSTGRES_RUN_MIGRATIONS")

	// ── Pricing ──
	setFloat64(&cfg.Pricing.SmallOrderSize, "BOOKSIM_PRICING_SMALL_ORDER_SIZE")
	setFloat64(&cfg.Pricing.MediumOrderSize, "BOOKSIM_PRICING_MEDIUM_ORDER_SIZE")
	setFloat64(&cfg.Pricing.LargeOrderSize, "BOOKSIM_PRICING_LARGE_ORDER_SIZE")

	// ── Liquidity ──
	setFloat64(&cfg.Liquidity.MaxHealthySpreadBps, "BOOKSIM_LIQUIDITY_MAX_HEALTHY_SPREAD_BPS")
	setFloat64(&cfg.Liquidity.MinHealthyDepth, "BOOKSIM_LIQUIDITY_MIN_HEALTHY_DEPTH")
	setFloat64(&cfg.Liquidity.ReferenceSize, "BOOKSIM_LIQUIDITY_REFERENCE_SIZE")
	setInt(&cfg.Liquidity.ReferenceLevels, "BOOKSIM_LIQUIDITY_REFERENCE_LEVELS")

	// ── Sim ──
	setBool(&cfg.Sim.PersistHistory, "BOOKSIM_SIM_PERSIST_HISTORY")

	// ── Top-level ──
	setStr(&cfg.Mode, "BOOKSIM_MODE")
	setStr(&cfg.LogLevel, "BOOKSIM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
