package domain

import "time"

// SpreadMetrics is the bid-ask spread expressed three ways. It is always
// derived from the current best bid/ask, never stored.
type SpreadMetrics struct {
	Dollars     float64
	Percent     float64
	BasisPoints float64
}

// ExecutionEstimate is the result of walking one side of the book for a given
// size. Produced fresh per query; the book may have changed since the last one.
//
// FillableSize carries the amount actually available when CanFill is false, so
// callers never have to recover it from the human-readable Reason.
type ExecutionEstimate struct {
	Side           Side
	RequestedSize  float64
	AvgPrice       float64
	WorstPrice     float64
	SlippageBps    float64
	LevelsConsumed int
	CanFill        bool
	FillableSize   float64
	Reason         string
}

// LiquidityCondition is depth-banded liquidity around mid together with the
// derived health fields. Near/Medium/Far are the cumulative size within
// 10/50/100 bps of mid; the Within* fields are the same values under their
// band-width names for display adapters that prefer them.
type LiquidityCondition struct {
	Near   float64
	Medium float64
	Far    float64

	Within10Bps  float64
	Within50Bps  float64
	Within100Bps float64

	SpreadBps     float64
	ImbalancePct  float64
	QualityScore  float64
	IsHealthy     bool
}

// MarketContext is a point-in-time rollup of everything a display or strategy
// layer needs about one instrument. Constructed on demand.
type MarketContext struct {
	InstrumentID   string
	MidPrice       float64
	LastTradePrice float64
	BestBid        float64
	BestAsk        float64
	Spread         SpreadMetrics

	SmallOrderEst  ExecutionEstimate
	MediumOrderEst ExecutionEstimate
	LargeOrderEst  ExecutionEstimate

	Liquidity LiquidityCondition

	Timestamp time.Time
}

// Candle is one OHLCV bar. It is mutated in place while its bucket is open and
// becomes immutable once emitted.
type Candle struct {
	BucketStart time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}
