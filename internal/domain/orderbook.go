// Package domain defines the core types shared across the simulation engine:
// order books, price/liquidity metrics, candles, and simulated trades.
package domain

import "time"

// Side indicates the taker direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Validate returns ErrUnknownSide for anything other than buy or sell.
func (s Side) Validate() error {
	switch s {
	case SideBuy, SideSell:
		return nil
	default:
		return ErrUnknownSide
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PriceLevel is a single price+size entry in an order book. A level with
// size 0 is logically absent.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is an immutable point-in-time view of the two-sided depth for one
// instrument. Bids are sorted descending by price, asks ascending. The book
// state component owns the mutable copy; everything handed to consumers is a
// clone.
type OrderBook struct {
	InstrumentID string
	Bids         []PriceLevel
	Asks         []PriceLevel
	Sequence     uint64
	Timestamp    time.Time
}

// BestBid returns the top bid level, or a zero level if the bid side is empty.
func (b OrderBook) BestBid() PriceLevel {
	if len(b.Bids) == 0 {
		return PriceLevel{}
	}
	return b.Bids[0]
}

// BestAsk returns the top ask level, or a zero level if the ask side is empty.
func (b OrderBook) BestAsk() PriceLevel {
	if len(b.Asks) == 0 {
		return PriceLevel{}
	}
	return b.Asks[0]
}

// SideLevels returns the levels the taker side executes against: asks for a
// buy, bids for a sell.
func (b OrderBook) SideLevels(side Side) []PriceLevel {
	if side == SideBuy {
		return b.Asks
	}
	return b.Bids
}

// Crossed reports whether the best bid price has reached or passed the best
// ask price. A crossed book is a feed error, never a tradable state.
func (b OrderBook) Crossed() bool {
	return len(b.Bids) > 0 && len(b.Asks) > 0 && b.Bids[0].Price >= b.Asks[0].Price
}

// Clone returns a deep copy whose level slices are safe to retain.
func (b OrderBook) Clone() OrderBook {
	out := b
	out.Bids = make([]PriceLevel, len(b.Bids))
	copy(out.Bids, b.Bids)
	out.Asks = make([]PriceLevel, len(b.Asks))
	copy(out.Asks, b.Asks)
	return out
}

// BookSnapshot is a full-replace message from the depth feed.
type BookSnapshot struct {
	InstrumentID string
	Bids         []PriceLevel
	Asks         []PriceLevel
	Sequence     uint64
	Timestamp    time.Time
}

// LevelChange is one entry of an incremental book update. Size 0 removes the
// level at Price.
type LevelChange struct {
	Side  Side
	Price float64
	Size  float64
}

// BookUpdate is an incremental delta message from the depth feed. All changes
// in one update are applied atomically.
type BookUpdate struct {
	InstrumentID string
	Changes      []LevelChange
	Sequence     uint64
	Timestamp    time.Time
}

// Tick is a single trade-price observation from the ticker feed. Size is 0
// when the feed does not report traded quantity.
type Tick struct {
	InstrumentID string
	Price        float64
	Size         float64
	Timestamp    time.Time
}
