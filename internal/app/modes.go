package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alephtrade/booksim/internal/book"
	"github.com/alephtrade/booksim/internal/domain"
	"github.com/alephtrade/booksim/internal/feed"
	"github.com/alephtrade/booksim/internal/liquidity"
	"github.com/alephtrade/booksim/internal/pricing"
	"github.com/alephtrade/booksim/internal/service"
)

// statsLogInterval controls how often the running modes log engine summaries.
const statsLogInterval = 30 * time.Second

func (a *App) pricingConfig() pricing.Config {
	return pricing.Config{
		SmallOrderSize:  a.cfg.Pricing.SmallOrderSize,
		MediumOrderSize: a.cfg.Pricing.MediumOrderSize,
		LargeOrderSize:  a.cfg.Pricing.LargeOrderSize,
	}
}

func (a *App) liquidityConfig() liquidity.Config {
	return liquidity.Config{
		MaxHealthySpreadBps: a.cfg.Liquidity.MaxHealthySpreadBps,
		MinHealthyDepth:     a.cfg.Liquidity.MinHealthyDepth,
		ReferenceSize:       a.cfg.Liquidity.ReferenceSize,
		ReferenceLevels:     a.cfg.Liquidity.ReferenceLevels,
	}
}

// LiveMode connects to the configured depth feed, maintains per-instrument
// books, and publishes derived contexts and candles until the context is
// cancelled.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode",
		slog.String("ws_url", a.cfg.Feed.WsURL),
		slog.Any("instruments", a.cfg.Feed.InstrumentIDs),
	)

	g, ctx := errgroup.WithContext(ctx)

	marketSvc, err := service.NewMarketService(
		a.cfg.Feed.InstrumentIDs,
		a.pricingConfig(),
		a.liquidityConfig(),
		a.cfg.Candles.GranularityDurations(),
		deps.ContextCache,
		deps.CandleCache,
		deps.SignalBus,
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("live mode: %w", err)
	}

	feeder := feed.NewFeeder(
		a.cfg.Feed.WsURL,
		a.cfg.Feed.InstrumentIDs,
		a.cfg.Feed.ReconnectDelay.Duration,
		marketSvc,
		a.logger,
	)
	marketSvc.SetResync(feeder.RequestSnapshot)

	g.Go(func() error {
		defer feeder.Close()
		return feeder.Run(ctx)
	})

	g.Go(func() error {
		return a.logContexts(ctx, marketSvc)
	})

	return g.Wait()
}

// DemoMode runs the full engine against a synthetic book: the driver replaces
// the live feed, pushing generated snapshots and trade prints through the same
// sink the feeder would, and a synthetic order flow exercises the simulator.
func (a *App) DemoMode(ctx context.Context, deps *Dependencies) error {
	instrumentID := a.cfg.Demo.InstrumentID
	a.logger.InfoContext(ctx, "starting demo mode",
		slog.String("instrument_id", instrumentID),
		slog.Float64("mid", a.cfg.Demo.Mid),
	)

	g, ctx := errgroup.WithContext(ctx)

	marketSvc, err := service.NewMarketService(
		[]string{instrumentID},
		a.pricingConfig(),
		a.liquidityConfig(),
		a.cfg.Candles.GranularityDurations(),
		deps.ContextCache,
		deps.CandleCache,
		deps.SignalBus,
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("demo mode: %w", err)
	}
	simSvc := service.NewSimService(marketSvc, deps.TradeStore, a.logger)

	g.Go(func() error {
		return a.runSyntheticFeed(ctx, marketSvc)
	})
	g.Go(func() error {
		return a.runSyntheticOrderFlow(ctx, simSvc, instrumentID)
	})
	g.Go(func() error {
		return a.logContexts(ctx, marketSvc)
	})

	return g.Wait()
}

// runSyntheticFeed drives the market service the way the live feeder would:
// a fresh snapshot per tick with the mid on a small random walk, plus a trade
// print inside the spread.
func (a *App) runSyntheticFeed(ctx context.Context, marketSvc *service.MarketService) error {
	syn := book.SyntheticConfig{
		InstrumentID:    a.cfg.Demo.InstrumentID,
		Mid:             a.cfg.Demo.Mid,
		SpreadBps:       a.cfg.Demo.SpreadBps,
		Levels:          a.cfg.Demo.Levels,
		BaseSize:        a.cfg.Demo.BaseSize,
		SizeGrowth:      a.cfg.Demo.SizeGrowth,
		LevelSpacingBps: a.cfg.Demo.LevelSpacingBps,
		ImbalancePct:    a.cfg.Demo.ImbalancePct,
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	ticker := time.NewTicker(a.cfg.Demo.TickInterval.Duration)
	defer ticker.Stop()

	var sequence uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			// Random walk capped at 5 bps per tick.
			syn.Mid *= 1 + (rng.Float64()-0.5)*0.001
			sequence++
			marketSvc.HandleSnapshot(ctx, syn.Snapshot(sequence, now))

			halfSpread := syn.Mid * syn.SpreadBps / 2 / 10000
			marketSvc.HandleTick(ctx, domain.Tick{
				InstrumentID: syn.InstrumentID,
				Price:        syn.Mid + (rng.Float64()-0.5)*2*halfSpread,
				Size:         syn.BaseSize * rng.Float64(),
				Timestamp:    now,
			})
		}
	}
}

// runSyntheticOrderFlow submits a mix of market and limit orders against the
// synthetic book and logs the aggregate statistics periodically.
func (a *App) runSyntheticOrderFlow(ctx context.Context, simSvc *service.SimService, instrumentID string) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + 1))

	orderTicker := time.NewTicker(2 * time.Second)
	defer orderTicker.Stop()
	statsTicker := time.NewTicker(statsLogInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-orderTicker.C:
			o := a.randomOrder(rng)
			trade, err := simSvc.Submit(ctx, instrumentID, o)
			if err != nil {
				a.logger.WarnContext(ctx, "demo order failed",
					slog.String("error", err.Error()))
				continue
			}
			a.logger.InfoContext(ctx, "demo order executed",
				slog.String("order_id", trade.OrderID),
				slog.String("type", string(trade.Type)),
				slog.String("side", string(trade.Side)),
				slog.String("status", string(trade.Status)),
				slog.Float64("filled_size", trade.FilledSize),
				slog.Float64("avg_price", trade.AveragePrice),
				slog.Float64("slippage_bps", trade.SlippageBps),
			)
		case <-statsTicker.C:
			stats, err := simSvc.Statistics(instrumentID)
			if err != nil {
				continue
			}
			a.logger.InfoContext(ctx, "demo execution statistics",
				slog.Int("total_orders", stats.TotalOrders),
				slog.Float64("fill_rate", stats.FillRate),
				slog.Float64("mean_slippage_bps", stats.MeanSlippageBps),
				slog.Float64("max_slippage_bps", stats.MaxSlippageBps),
				slog.Float64("total_slippage_usd", stats.TotalSlippageUSD),
			)
		}
	}
}

// randomOrder draws a mixed order: mostly small market orders, occasionally a
// large one that walks multiple levels, occasionally a limit order near mid.
func (a *App) randomOrder(rng *rand.Rand) domain.Order {
	side := domain.SideBuy
	if rng.Intn(2) == 0 {
		side = domain.SideSell
	}

	size := a.cfg.Pricing.SmallOrderSize * (0.5 + rng.Float64())
	switch rng.Intn(10) {
	case 0:
		size = a.cfg.Pricing.LargeOrderSize * (0.5 + rng.Float64())
	case 1, 2:
		size = a.cfg.Pricing.MediumOrderSize * (0.5 + rng.Float64())
	}

	if rng.Intn(4) == 0 {
		// Limit a few bps through or away from mid, so some fill and some do not.
		offsetBps := (rng.Float64() - 0.5) * 2 * a.cfg.Demo.SpreadBps
		limit := a.cfg.Demo.Mid * (1 + offsetBps/10000)
		return domain.LimitOrder("", side, size, limit)
	}
	return domain.MarketOrder("", side, size)
}

// logContexts periodically logs a one-line summary per tracked instrument.
func (a *App) logContexts(ctx context.Context, marketSvc *service.MarketService) error {
	ticker := time.NewTicker(statsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, id := range marketSvc.InstrumentIDs() {
				mc, err := marketSvc.Context(id)
				if err != nil {
					continue
				}
				a.logger.InfoContext(ctx, "market context",
					slog.String("instrument_id", id),
					slog.Float64("mid", mc.MidPrice),
					slog.Float64("spread_bps", mc.Spread.BasisPoints),
					slog.Float64("quality_score", mc.Liquidity.QualityScore),
					slog.Bool("healthy", mc.Liquidity.IsHealthy),
				)
			}
		}
	}
}
