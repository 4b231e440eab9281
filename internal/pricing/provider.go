// Package pricing derives prices and execution-cost estimates from the current
// order book state.
package pricing

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alephtrade/booksim/internal/domain"
)

// BookSource yields cloned order book snapshots. Implemented by *book.Book.
type BookSource interface {
	Snapshot() domain.OrderBook
}

// LiquidityReader supplies the banded-liquidity fields of a MarketContext.
// Implemented by *liquidity.Analyzer.
type LiquidityReader interface {
	Condition() domain.LiquidityCondition
}

// Config holds the fixed reference order sizes used in MarketContext
// execution-cost estimates.
type Config struct {
	SmallOrderSize  float64 `toml:"small_order_size"`
	MediumOrderSize float64 `toml:"medium_order_size"`
	LargeOrderSize  float64 `toml:"large_order_size"`
}

// DefaultConfig returns the reference sizes used when none are configured.
func DefaultConfig() Config {
	return Config{
		SmallOrderSize:  0.1,
		MediumOrderSize: 1,
		LargeOrderSize:  10,
	}
}

// Provider computes prices, spreads, and execution estimates over a book
// snapshot. All methods are pure reads over the snapshot visible at call time
// and safe for concurrent use.
type Provider struct {
	book   BookSource
	cfg    Config
	logger *slog.Logger

	mu          sync.RWMutex
	liquidity   LiquidityReader
	lastTrade   float64
	lastTradeAt time.Time
}

// NewProvider creates a Provider reading from the given book.
func NewProvider(book BookSource, cfg Config, logger *slog.Logger) *Provider {
	return &Provider{
		book:   book,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "pricing")),
	}
}

// AttachLiquidity wires in the liquidity analyzer consulted by MarketContext.
// Without one, contexts carry a zero LiquidityCondition.
func (p *Provider) AttachLiquidity(lr LiquidityReader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.liquidity = lr
}

// RecordTrade stores the most recent trade price for MarketContext.
func (p *Provider) RecordTrade(t domain.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastTrade = t.Price
	p.lastTradeAt = t.Timestamp
}

// Book returns a snapshot of the underlying book.
func (p *Provider) Book() domain.OrderBook {
	return p.book.Snapshot()
}

// BestPrices returns the top-of-book prices. A side with no depth reports 0.
func (p *Provider) BestPrices() (bid, ask float64) {
	b := p.book.Snapshot()
	return b.BestBid().Price, b.BestAsk().Price
}

// MidPrice returns (best_bid + best_ask) / 2, or 0 when either side is empty.
// Zero is the documented "no market" sentinel, not an error; callers must
// check it before dividing by mid.
func (p *Provider) MidPrice() float64 {
	return midOf(p.book.Snapshot())
}

// Spread returns the current bid-ask spread in dollars, percent, and basis
// points. All fields are 0 for a degenerate book.
func (p *Provider) Spread() domain.SpreadMetrics {
	return spreadOf(p.book.Snapshot())
}

// EstimateExecutionPrice walks the relevant book side (asks for a buy, bids
// for a sell) in book order, consuming level size until the requested size is
// filled or the side is exhausted. When depth runs out, CanFill is false and
// FillableSize carries the amount the walk could consume; AvgPrice and
// WorstPrice still describe that partial walk.
func (p *Provider) EstimateExecutionPrice(side domain.Side, size float64) (domain.ExecutionEstimate, error) {
	if err := side.Validate(); err != nil {
		return domain.ExecutionEstimate{}, fmt.Errorf("pricing: estimate: side %q: %w", side, err)
	}
	if size < 0 {
		return domain.ExecutionEstimate{}, fmt.Errorf("pricing: estimate: size %v: %w", size, domain.ErrInvalidSize)
	}
	return walk(p.book.Snapshot(), side, size), nil
}

// MarketContext assembles a point-in-time rollup: prices, spread, three
// reference-size buy estimates, and the attached analyzer's liquidity view.
func (p *Provider) MarketContext() domain.MarketContext {
	b := p.book.Snapshot()

	p.mu.RLock()
	lr := p.liquidity
	lastTrade := p.lastTrade
	p.mu.RUnlock()

	mc := domain.MarketContext{
		InstrumentID:   b.InstrumentID,
		MidPrice:       midOf(b),
		LastTradePrice: lastTrade,
		BestBid:        b.BestBid().Price,
		BestAsk:        b.BestAsk().Price,
		Spread:         spreadOf(b),
		SmallOrderEst:  walk(b, domain.SideBuy, p.cfg.SmallOrderSize),
		MediumOrderEst: walk(b, domain.SideBuy, p.cfg.MediumOrderSize),
		LargeOrderEst:  walk(b, domain.SideBuy, p.cfg.LargeOrderSize),
		Timestamp:      b.Timestamp,
	}
	if mc.Timestamp.IsZero() {
		mc.Timestamp = time.Now()
	}
	if lr != nil {
		mc.Liquidity = lr.Condition()
	}
	return mc
}

func midOf(b domain.OrderBook) float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

func spreadOf(b domain.OrderBook) domain.SpreadMetrics {
	mid := midOf(b)
	if mid <= 0 {
		return domain.SpreadMetrics{}
	}
	dollars := b.Asks[0].Price - b.Bids[0].Price
	percent := dollars / mid * 100
	return domain.SpreadMetrics{
		Dollars:     dollars,
		Percent:     percent,
		BasisPoints: percent * 100,
	}
}

// walk is the level-walking core shared by estimates and market contexts.
func walk(b domain.OrderBook, side domain.Side, size float64) domain.ExecutionEstimate {
	est := domain.ExecutionEstimate{
		Side:          side,
		RequestedSize: size,
	}
	if size == 0 {
		est.CanFill = true
		return est
	}

	levels := b.SideLevels(side)
	mid := midOf(b)

	remaining := size
	var cost, filled float64
	for _, lvl := range levels {
		take := lvl.Size
		if take > remaining {
			take = remaining
		}
		cost += lvl.Price * take
		filled += take
		remaining -= take
		est.WorstPrice = lvl.Price
		est.LevelsConsumed++
		if remaining <= 0 {
			break
		}
	}

	est.FillableSize = filled
	if filled > 0 {
		est.AvgPrice = cost / filled
	}
	if mid > 0 && filled > 0 {
		slip := (est.AvgPrice - mid) / mid * 10000
		if side == domain.SideSell {
			slip = -slip
		}
		est.SlippageBps = slip
	}

	if remaining > 0 {
		est.CanFill = false
		if len(levels) == 0 {
			est.Reason = fmt.Sprintf("no %s-side liquidity available", side.Opposite())
		} else {
			est.Reason = fmt.Sprintf("insufficient depth: only %v available of %v requested", filled, size)
		}
		return est
	}
	est.CanFill = true
	return est
}
