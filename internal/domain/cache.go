package domain

import (
	"context"
	"time"
)

// ContextCache stores the latest MarketContext per instrument for display
// adapters that poll instead of subscribing.
type ContextCache interface {
	SetContext(ctx context.Context, mc MarketContext) error
	GetContext(ctx context.Context, instrumentID string) (MarketContext, error)
}

// CandleCache keeps a capped list of recently closed bars per instrument and
// granularity.
type CandleCache interface {
	AppendCandle(ctx context.Context, instrumentID string, granularity time.Duration, c Candle) error
	RecentCandles(ctx context.Context, instrumentID string, granularity time.Duration, limit int) ([]Candle, error)
}

// SignalBus is a lightweight pub/sub fan-out for price and candle events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// SimTradeStore persists the append-only simulated trade history.
type SimTradeStore interface {
	Insert(ctx context.Context, t SimulatedTrade) error
	InsertBatch(ctx context.Context, trades []SimulatedTrade) error
	ListByInstrument(ctx context.Context, instrumentID string, limit int) ([]SimulatedTrade, error)
	CountByStatus(ctx context.Context, instrumentID string) (map[TradeStatus]int64, error)
}
