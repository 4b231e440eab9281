// Package liquidity computes depth-banded liquidity, order flow imbalance,
// and a market-quality score from the price provider's book view.
package liquidity

import (
	"log/slog"
	"math"

	"github.com/alephtrade/booksim/internal/domain"
)

// Band widths in basis points around mid. Near/medium/far mirror the
// 0.1% / 0.5% / 1.0% price-impact bands used for display.
const (
	nearBandBps   = 10
	mediumBandBps = 50
	farBandBps    = 100
)

// PriceSource is the slice of the pricing provider the analyzer needs.
type PriceSource interface {
	Book() domain.OrderBook
	Spread() domain.SpreadMetrics
}

// Config holds the health thresholds and score references. Thresholds are
// configuration per instrument class, never hard-coded.
type Config struct {
	// MaxHealthySpreadBps is the widest spread still considered healthy.
	MaxHealthySpreadBps float64 `toml:"max_healthy_spread_bps"`
	// MinHealthyDepth is the minimum combined near-band size for health.
	MinHealthyDepth float64 `toml:"min_healthy_depth"`
	// ReferenceSize is the near-band depth that earns a full depth score.
	ReferenceSize float64 `toml:"reference_size"`
	// ReferenceLevels is the per-side level count that earns a full
	// level-count score.
	ReferenceLevels int `toml:"reference_levels"`
}

// DefaultConfig returns thresholds suitable for a liquid instrument.
func DefaultConfig() Config {
	return Config{
		MaxHealthySpreadBps: 20,
		MinHealthyDepth:     1,
		ReferenceSize:       10,
		ReferenceLevels:     10,
	}
}

// Analyzer derives liquidity metrics from the current book. All methods are
// pure reads over a single snapshot and safe for concurrent use.
type Analyzer struct {
	src    PriceSource
	cfg    Config
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer reading through the given price source.
func NewAnalyzer(src PriceSource, cfg Config, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		src:    src,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "liquidity")),
	}
}

// Condition computes the combined-side band metrics plus the derived spread,
// imbalance, quality, and health fields, all from one book snapshot.
func (a *Analyzer) Condition() domain.LiquidityCondition {
	b := a.src.Book()
	mid := midOf(b)
	if mid <= 0 {
		// Degenerate market: zero sentinel values, unhealthy.
		return domain.LiquidityCondition{}
	}

	near := bandSize(b.Bids, mid, nearBandBps) + bandSize(b.Asks, mid, nearBandBps)
	medium := bandSize(b.Bids, mid, mediumBandBps) + bandSize(b.Asks, mid, mediumBandBps)
	far := bandSize(b.Bids, mid, farBandBps) + bandSize(b.Asks, mid, farBandBps)

	spreadBps := spreadBpsOf(b, mid)

	cond := domain.LiquidityCondition{
		Near:         near,
		Medium:       medium,
		Far:          far,
		Within10Bps:  near,
		Within50Bps:  medium,
		Within100Bps: far,
		SpreadBps:    spreadBps,
		ImbalancePct: imbalanceOf(b, mid),
		IsHealthy:    spreadBps < a.cfg.MaxHealthySpreadBps && near >= a.cfg.MinHealthyDepth,
	}
	cond.QualityScore = a.quality(spreadBps, near, len(b.Bids), len(b.Asks))
	return cond
}

// SideCondition computes the band metrics for a single side of the book.
func (a *Analyzer) SideCondition(side domain.Side) domain.LiquidityCondition {
	b := a.src.Book()
	mid := midOf(b)
	if mid <= 0 {
		return domain.LiquidityCondition{}
	}
	levels := b.Bids
	if side == domain.SideSell {
		levels = b.Asks
	}
	near := bandSize(levels, mid, nearBandBps)
	medium := bandSize(levels, mid, mediumBandBps)
	far := bandSize(levels, mid, farBandBps)
	return domain.LiquidityCondition{
		Near:         near,
		Medium:       medium,
		Far:          far,
		Within10Bps:  near,
		Within50Bps:  medium,
		Within100Bps: far,
		SpreadBps:    spreadBpsOf(b, mid),
	}
}

// Imbalance returns (bid_volume − ask_volume) / (bid_volume + ask_volume) ×
// 100 over the near band. Positive means more buy-side support. Result is in
// [-100, 100]; an empty near band reports 0.
func (a *Analyzer) Imbalance() float64 {
	b := a.src.Book()
	mid := midOf(b)
	if mid <= 0 {
		return 0
	}
	return imbalanceOf(b, mid)
}

// MarketQuality returns the 0–100 quality score for the current book.
func (a *Analyzer) MarketQuality() float64 {
	return a.Condition().QualityScore
}

// IsHealthy reports whether spread and near-band depth are within the
// configured thresholds.
func (a *Analyzer) IsHealthy() bool {
	return a.Condition().IsHealthy
}

// quality combines three normalized components into a 0–100 score:
//
//   - 40% inverse spread: 1/(1+spread_bps/10), so 0 bps scores 1.0 and each
//     additional 10 bps halves the remaining score,
//   - 40% near-band depth relative to ReferenceSize, capped at 1.0,
//   - 20% level count on the thinner side relative to ReferenceLevels.
func (a *Analyzer) quality(spreadBps, near float64, bidLevels, askLevels int) float64 {
	spreadScore := 1 / (1 + spreadBps/10)

	depthScore := 0.0
	if a.cfg.ReferenceSize > 0 {
		depthScore = math.Min(near/a.cfg.ReferenceSize, 1)
	}

	levelScore := 0.0
	if a.cfg.ReferenceLevels > 0 {
		thinner := math.Min(float64(bidLevels), float64(askLevels))
		levelScore = math.Min(thinner/float64(a.cfg.ReferenceLevels), 1)
	}

	return 100 * (0.4*spreadScore + 0.4*depthScore + 0.2*levelScore)
}

func midOf(b domain.OrderBook) float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

func spreadBpsOf(b domain.OrderBook, mid float64) float64 {
	if mid <= 0 || len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Asks[0].Price - b.Bids[0].Price) / mid * 10000
}

// bandSize sums level size whose price sits within bps of mid.
func bandSize(levels []domain.PriceLevel, mid, bps float64) float64 {
	limit := mid * bps / 10000
	var total float64
	for _, lvl := range levels {
		if math.Abs(lvl.Price-mid) <= limit {
			total += lvl.Size
			continue
		}
		// Levels are sorted best-first; once outside the band, stop.
		break
	}
	return total
}

func imbalanceOf(b domain.OrderBook, mid float64) float64 {
	bidVol := bandSize(b.Bids, mid, nearBandBps)
	askVol := bandSize(b.Asks, mid, nearBandBps)
	total := bidVol + askVol
	if total <= 0 {
		return 0
	}
	return (bidVol - askVol) / total * 100
}
