// Package book owns the mutable order book state for one instrument. Exactly
// one goroutine applies feed messages; any number of readers take cloned
// snapshots. Deltas are applied atomically per message: changes land on a
// working copy that is validated before it is swapped in, so readers never
// observe a partially-applied or crossed book.
package book

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alephtrade/booksim/internal/domain"
)

// ResyncFunc is invoked when the book detects a feed inconsistency (sequence
// gap or crossed book) and needs a fresh snapshot from the feed.
type ResyncFunc func(instrumentID string)

// Book is the order book state for a single instrument.
type Book struct {
	mu       sync.RWMutex
	cur      domain.OrderBook
	stale    bool
	onResync ResyncFunc
	logger   *slog.Logger
}

// New creates an empty Book for the given instrument.
func New(instrumentID string, logger *slog.Logger) *Book {
	return &Book{
		cur: domain.OrderBook{InstrumentID: instrumentID},
		logger: logger.With(
			slog.String("component", "book"),
			slog.String("instrument_id", instrumentID),
		),
	}
}

// OnResync registers the callback invoked when the feed must deliver a new
// snapshot. Must be set before the feed starts delivering messages.
func (b *Book) OnResync(fn ResyncFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onResync = fn
}

// InstrumentID returns the instrument this book tracks.
func (b *Book) InstrumentID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cur.InstrumentID
}

// Snapshot returns a deep copy of the current book. During a resync window
// this is the last-known-good state, not a partially-applied one.
func (b *Book) Snapshot() domain.OrderBook {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cur.Clone()
}

// Stale reports whether the book is waiting for a resync snapshot.
func (b *Book) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// ApplySnapshot replaces the book wholesale. Levels are sorted and zero-size
// entries dropped before the swap. A crossed snapshot is rejected and keeps
// the previous state.
func (b *Book) ApplySnapshot(snap domain.BookSnapshot) error {
	next := domain.OrderBook{
		InstrumentID: snap.InstrumentID,
		Bids:         normalizeLevels(snap.Bids, true),
		Asks:         normalizeLevels(snap.Asks, false),
		Sequence:     snap.Sequence,
		Timestamp:    snap.Timestamp,
	}
	if next.Crossed() {
		b.logger.Warn("rejecting crossed snapshot",
			slog.Uint64("sequence", snap.Sequence),
			slog.Float64("best_bid", next.BestBid().Price),
			slog.Float64("best_ask", next.BestAsk().Price),
		)
		return fmt.Errorf("book: apply snapshot seq %d: %w", snap.Sequence, domain.ErrCrossedBook)
	}

	b.mu.Lock()
	b.cur = next
	b.stale = false
	b.mu.Unlock()
	return nil
}

// ApplyUpdate applies one delta message. Duplicate or out-of-order sequence
// numbers are dropped without touching the book. A sequence gap or a crossed
// result flags the book stale and triggers a resync request; the last-known-
// good state remains visible to readers meanwhile.
func (b *Book) ApplyUpdate(upd domain.BookUpdate) error {
	b.mu.Lock()

	if b.stale {
		b.mu.Unlock()
		return fmt.Errorf("book: apply update seq %d: %w", upd.Sequence, domain.ErrStaleBook)
	}
	if upd.Sequence <= b.cur.Sequence {
		seq := b.cur.Sequence
		b.mu.Unlock()
		b.logger.Debug("dropping stale update",
			slog.Uint64("sequence", upd.Sequence),
			slog.Uint64("book_sequence", seq),
		)
		return nil
	}
	if upd.Sequence > b.cur.Sequence+1 {
		b.stale = true
		fn, id := b.onResync, b.cur.InstrumentID
		seq := b.cur.Sequence
		b.mu.Unlock()
		b.logger.Warn("sequence gap, requesting resync",
			slog.Uint64("sequence", upd.Sequence),
			slog.Uint64("book_sequence", seq),
		)
		if fn != nil {
			fn(id)
		}
		return fmt.Errorf("book: apply update seq %d after %d: %w", upd.Sequence, seq, domain.ErrSequenceGap)
	}

	next := b.cur.Clone()
	for _, ch := range upd.Changes {
		switch ch.Side {
		case domain.SideBuy:
			next.Bids = applyChange(next.Bids, ch.Price, ch.Size, true)
		case domain.SideSell:
			next.Asks = applyChange(next.Asks, ch.Price, ch.Size, false)
		default:
			b.mu.Unlock()
			return fmt.Errorf("book: apply update seq %d: side %q: %w", upd.Sequence, ch.Side, domain.ErrUnknownSide)
		}
	}
	next.Sequence = upd.Sequence
	if !upd.Timestamp.IsZero() {
		next.Timestamp = upd.Timestamp
	}

	if next.Crossed() {
		b.stale = true
		fn, id := b.onResync, b.cur.InstrumentID
		b.mu.Unlock()
		b.logger.Warn("update crossed the book, requesting resync",
			slog.Uint64("sequence", upd.Sequence),
			slog.Float64("best_bid", next.BestBid().Price),
			slog.Float64("best_ask", next.BestAsk().Price),
		)
		if fn != nil {
			fn(id)
		}
		return fmt.Errorf("book: apply update seq %d: %w", upd.Sequence, domain.ErrCrossedBook)
	}

	b.cur = next
	b.mu.Unlock()
	return nil
}

// normalizeLevels clones, drops zero-size levels, and sorts best-first.
func normalizeLevels(levels []domain.PriceLevel, descending bool) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Size > 0 && lvl.Price > 0 {
			out = append(out, lvl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// applyChange inserts, updates, or removes (size 0) a single level while
// keeping the slice sorted best-first.
func applyChange(levels []domain.PriceLevel, price, size float64, descending bool) []domain.PriceLevel {
	i := sort.Search(len(levels), func(i int) bool {
		if descending {
			return levels[i].Price <= price
		}
		return levels[i].Price >= price
	})

	if i < len(levels) && levels[i].Price == price {
		if size <= 0 {
			return append(levels[:i], levels[i+1:]...)
		}
		levels[i].Size = size
		return levels
	}
	if size <= 0 {
		return levels
	}
	levels = append(levels, domain.PriceLevel{})
	copy(levels[i+1:], levels[i:])
	levels[i] = domain.PriceLevel{Price: price, Size: size}
	return levels
}
