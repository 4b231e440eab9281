package book

import (
	"math"
	"time"

	"github.com/alephtrade/booksim/internal/domain"
)

// SyntheticConfig describes a deterministic order book shape: mid price,
// spread, per-level spacing, geometric size growth with depth, and a bid/ask
// size skew. It is the primary way to exercise the engine without a live feed.
type SyntheticConfig struct {
	InstrumentID    string
	Mid             float64
	SpreadBps       float64
	Levels          int     // levels per side
	BaseSize        float64 // size at the top level
	SizeGrowth      float64 // multiplicative size factor per level deeper
	LevelSpacingBps float64 // distance between adjacent levels
	ImbalancePct    float64 // positive skews size toward bids, range [-100, 100]
}

// DefaultSyntheticConfig is a tight, modestly deep book around the given mid.
func DefaultSyntheticConfig(instrumentID string, mid float64) SyntheticConfig {
	return SyntheticConfig{
		InstrumentID:    instrumentID,
		Mid:             mid,
		SpreadBps:       2,
		Levels:          20,
		BaseSize:        0.5,
		SizeGrowth:      1.1,
		LevelSpacingBps: 1,
	}
}

// Snapshot generates the full-replace feed message for this shape.
func (c SyntheticConfig) Snapshot(sequence uint64, ts time.Time) domain.BookSnapshot {
	halfSpread := c.Mid * c.SpreadBps / 20000
	spacing := c.Mid * c.LevelSpacingBps / 10000

	bidScale := 1 + c.ImbalancePct/100
	askScale := 1 - c.ImbalancePct/100
	bidScale = math.Max(bidScale, 0)
	askScale = math.Max(askScale, 0)

	bids := make([]domain.PriceLevel, 0, c.Levels)
	asks := make([]domain.PriceLevel, 0, c.Levels)
	size := c.BaseSize
	for i := 0; i < c.Levels; i++ {
		offset := float64(i) * spacing
		bids = append(bids, domain.PriceLevel{
			Price: c.Mid - halfSpread - offset,
			Size:  size * bidScale,
		})
		asks = append(asks, domain.PriceLevel{
			Price: c.Mid + halfSpread + offset,
			Size:  size * askScale,
		})
		size *= c.SizeGrowth
	}

	return domain.BookSnapshot{
		InstrumentID: c.InstrumentID,
		Bids:         bids,
		Asks:         asks,
		Sequence:     sequence,
		Timestamp:    ts,
	}
}
