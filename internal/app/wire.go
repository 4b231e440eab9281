package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alephtrade/booksim/internal/cache/redis"
	"github.com/alephtrade/booksim/internal/config"
	"github.com/alephtrade/booksim/internal/domain"
	"github.com/alephtrade/booksim/internal/store/postgres"
)

// contextTTL bounds how long a cached market context stays readable after the
// feed stops refreshing it.
const contextTTL = 5 * time.Minute

// Dependencies bundles the external dependencies the application modes need.
// Cache and store fields stay nil when the corresponding backend is disabled;
// the services treat nil as "skip publishing".
type Dependencies struct {
	ContextCache domain.ContextCache
	CandleCache  domain.CandleCache
	SignalBus    domain.SignalBus
	TradeStore   domain.SimTradeStore
}

// Wire constructs the concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.ContextCache = redis.NewContextCache(redisClient, contextTTL)
		deps.CandleCache = redis.NewCandleCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		logger.InfoContext(ctx, "wire: redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		if cfg.Sim.PersistHistory {
			deps.TradeStore = postgres.NewSimTradeStore(pgClient)
		}
		logger.InfoContext(ctx, "wire: postgres connected", slog.String("database", cfg.Postgres.Database))
	}

	return deps, cleanup, nil
}
