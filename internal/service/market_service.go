// Package service composes the per-instrument engine pieces behind the feed
// and the simulator entry points.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alephtrade/booksim/internal/book"
	"github.com/alephtrade/booksim/internal/candle"
	"github.com/alephtrade/booksim/internal/domain"
	"github.com/alephtrade/booksim/internal/feed"
	"github.com/alephtrade/booksim/internal/liquidity"
	"github.com/alephtrade/booksim/internal/pricing"
)

// instrument bundles the live state for one instrument: its maintained book,
// the price provider and liquidity analyzer reading from it, and one candle
// aggregator per configured granularity.
type instrument struct {
	book        *book.Book
	provider    *pricing.Provider
	analyzer    *liquidity.Analyzer
	aggregators []*candle.Aggregator
}

// MarketService routes feed messages into per-instrument engine state and
// publishes derived market contexts and closed candles. It is the feed's sink,
// so all book mutation happens on the feed's read goroutine.
type MarketService struct {
	pricingCfg    pricing.Config
	liquidityCfg  liquidity.Config
	granularities []time.Duration

	contexts domain.ContextCache // optional
	candles  domain.CandleCache  // optional
	bus      domain.SignalBus    // optional
	logger   *slog.Logger

	mu          sync.RWMutex
	instruments map[string]*instrument
	resync      func(instrumentID string)
}

var _ feed.Sink = (*MarketService)(nil)

// NewMarketService creates a MarketService and builds engine state for each of
// the given instruments. Cache, candle store, and bus may be nil; publishing
// to them is skipped when absent.
func NewMarketService(
	instrumentIDs []string,
	pricingCfg pricing.Config,
	liquidityCfg liquidity.Config,
	granularities []time.Duration,
	contexts domain.ContextCache,
	candles domain.CandleCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) (*MarketService, error) {
	s := &MarketService{
		pricingCfg:    pricingCfg,
		liquidityCfg:  liquidityCfg,
		granularities: granularities,
		contexts:      contexts,
		candles:       candles,
		bus:           bus,
		logger:        logger.With(slog.String("component", "market_service")),
		instruments:   make(map[string]*instrument),
	}
	for _, id := range instrumentIDs {
		if err := s.addInstrument(id); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MarketService) addInstrument(id string) error {
	b := book.New(id, s.logger)
	b.OnResync(func(instrumentID string) {
		s.mu.RLock()
		fn := s.resync
		s.mu.RUnlock()
		if fn != nil {
			fn(instrumentID)
		}
	})

	p := pricing.NewProvider(b, s.pricingCfg, s.logger)
	a := liquidity.NewAnalyzer(p, s.liquidityCfg, s.logger)
	p.AttachLiquidity(a)

	inst := &instrument{book: b, provider: p, analyzer: a}
	for _, g := range s.granularities {
		agg, err := candle.NewAggregator(g, s.logger)
		if err != nil {
			return fmt.Errorf("market_service: aggregator for %s: %w", id, err)
		}
		granularity := g
		agg.Subscribe(func(c domain.Candle) {
			s.publishCandle(id, granularity, c)
		})
		inst.aggregators = append(inst.aggregators, agg)
	}

	s.mu.Lock()
	s.instruments[id] = inst
	s.mu.Unlock()
	return nil
}

// SetResync registers the callback invoked when a book needs a fresh snapshot
// after a sequence gap or a crossed state. Typically wired to the feeder's
// RequestSnapshot.
func (s *MarketService) SetResync(fn func(instrumentID string)) {
	s.mu.Lock()
	s.resync = fn
	s.mu.Unlock()
}

func (s *MarketService) get(instrumentID string) (*instrument, bool) {
	s.mu.RLock()
	inst, ok := s.instruments[instrumentID]
	s.mu.RUnlock()
	return inst, ok
}

// HandleSnapshot replaces an instrument's book and republishes its context.
func (s *MarketService) HandleSnapshot(ctx context.Context, snap domain.BookSnapshot) {
	inst, ok := s.get(snap.InstrumentID)
	if !ok {
		s.logger.DebugContext(ctx, "snapshot for untracked instrument",
			slog.String("instrument_id", snap.InstrumentID))
		return
	}
	if err := inst.book.ApplySnapshot(snap); err != nil {
		s.logger.WarnContext(ctx, "snapshot rejected",
			slog.String("instrument_id", snap.InstrumentID),
			slog.String("error", err.Error()))
		return
	}
	s.publishContext(ctx, snap.InstrumentID, inst)
}

// HandleUpdate applies an incremental update and republishes the context.
// Sequence gaps and crossed states are already handled inside the book (stale
// flag plus resync request), so here they are only logged.
func (s *MarketService) HandleUpdate(ctx context.Context, upd domain.BookUpdate) {
	inst, ok := s.get(upd.InstrumentID)
	if !ok {
		return
	}
	if err := inst.book.ApplyUpdate(upd); err != nil {
		s.logger.WarnContext(ctx, "update rejected",
			slog.String("instrument_id", upd.InstrumentID),
			slog.Uint64("sequence", upd.Sequence),
			slog.String("error", err.Error()))
		return
	}
	s.publishContext(ctx, upd.InstrumentID, inst)
}

// HandleTick records a trade print against the provider and feeds every candle
// aggregator for the instrument.
func (s *MarketService) HandleTick(ctx context.Context, tick domain.Tick) {
	inst, ok := s.get(tick.InstrumentID)
	if !ok {
		return
	}
	inst.provider.RecordTrade(tick)
	for _, agg := range inst.aggregators {
		agg.OnPriceUpdate(tick.Price, tick.Size, tick.Timestamp)
	}
}

func (s *MarketService) publishContext(ctx context.Context, instrumentID string, inst *instrument) {
	mc := inst.provider.MarketContext()

	if s.contexts != nil {
		if err := s.contexts.SetContext(ctx, mc); err != nil {
			s.logger.WarnContext(ctx, "context cache set failed",
				slog.String("instrument_id", instrumentID),
				slog.String("error", err.Error()))
			// Non-fatal: readers fall back to in-process state.
		}
	}
	if s.bus != nil {
		payload, err := json.Marshal(mc)
		if err != nil {
			s.logger.WarnContext(ctx, "context marshal failed",
				slog.String("instrument_id", instrumentID),
				slog.String("error", err.Error()))
			return
		}
		if err := s.bus.Publish(ctx, "mctx:"+instrumentID, payload); err != nil {
			s.logger.WarnContext(ctx, "context publish failed",
				slog.String("instrument_id", instrumentID),
				slog.String("error", err.Error()))
		}
	}
}

func (s *MarketService) publishCandle(instrumentID string, granularity time.Duration, c domain.Candle) {
	// Subscriber callbacks run on the feed goroutine with no inbound context.
	ctx := context.Background()

	if s.candles != nil {
		if err := s.candles.AppendCandle(ctx, instrumentID, granularity, c); err != nil {
			s.logger.Warn("candle cache append failed",
				slog.String("instrument_id", instrumentID),
				slog.Duration("granularity", granularity),
				slog.String("error", err.Error()))
		}
	}
	if s.bus != nil {
		payload, err := json.Marshal(c)
		if err != nil {
			s.logger.Warn("candle marshal failed",
				slog.String("instrument_id", instrumentID),
				slog.String("error", err.Error()))
			return
		}
		stream := fmt.Sprintf("candles:%s:%s", instrumentID, granularity)
		if err := s.bus.StreamAppend(ctx, stream, payload); err != nil {
			s.logger.Warn("candle stream append failed",
				slog.String("instrument_id", instrumentID),
				slog.String("error", err.Error()))
		}
	}
}

// Provider returns the price provider for an instrument.
func (s *MarketService) Provider(instrumentID string) (*pricing.Provider, error) {
	inst, ok := s.get(instrumentID)
	if !ok {
		return nil, fmt.Errorf("market_service: provider for %q: %w", instrumentID, domain.ErrNotFound)
	}
	return inst.provider, nil
}

// Analyzer returns the liquidity analyzer for an instrument.
func (s *MarketService) Analyzer(instrumentID string) (*liquidity.Analyzer, error) {
	inst, ok := s.get(instrumentID)
	if !ok {
		return nil, fmt.Errorf("market_service: analyzer for %q: %w", instrumentID, domain.ErrNotFound)
	}
	return inst.analyzer, nil
}

// Book returns a cloned view of an instrument's order book.
func (s *MarketService) Book(instrumentID string) (domain.OrderBook, error) {
	inst, ok := s.get(instrumentID)
	if !ok {
		return domain.OrderBook{}, fmt.Errorf("market_service: book for %q: %w", instrumentID, domain.ErrNotFound)
	}
	return inst.book.Snapshot(), nil
}

// Context returns the current market context for an instrument, computed from
// in-process state.
func (s *MarketService) Context(instrumentID string) (domain.MarketContext, error) {
	inst, ok := s.get(instrumentID)
	if !ok {
		return domain.MarketContext{}, fmt.Errorf("market_service: context for %q: %w", instrumentID, domain.ErrNotFound)
	}
	return inst.provider.MarketContext(), nil
}

// InstrumentIDs returns the tracked instrument IDs.
func (s *MarketService) InstrumentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.instruments))
	for id := range s.instruments {
		ids = append(ids, id)
	}
	return ids
}
