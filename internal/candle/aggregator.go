// Package candle buckets price observations into fixed-duration OHLCV bars.
package candle

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alephtrade/booksim/internal/domain"
)

// Subscriber receives each finalized bar exactly once, in time order. The
// still-open bar is never delivered.
type Subscriber func(domain.Candle)

// Aggregator buckets ticks for a single granularity. Changing granularity
// means creating a new instance; bar history does not migrate. A single mutex
// serializes tick updates with CurrentCandle reads.
type Aggregator struct {
	granularity time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	current *domain.Candle
	subs    []Subscriber
}

// NewAggregator creates an Aggregator for the given bucket duration.
func NewAggregator(granularity time.Duration, logger *slog.Logger) (*Aggregator, error) {
	if granularity <= 0 {
		return nil, fmt.Errorf("candle: granularity %v must be positive", granularity)
	}
	return &Aggregator{
		granularity: granularity,
		logger: logger.With(
			slog.String("component", "candle"),
			slog.Duration("granularity", granularity),
		),
	}, nil
}

// Granularity returns the fixed bucket duration of this instance.
func (a *Aggregator) Granularity() time.Duration {
	return a.granularity
}

// Subscribe registers a callback for finalized bars.
func (a *Aggregator) Subscribe(fn Subscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs = append(a.subs, fn)
}

// OnPriceUpdate folds one observation into the open bar, finalizing and
// emitting the previous bar when the observation starts a new bucket. Ticks
// older than the open bucket are dropped.
func (a *Aggregator) OnPriceUpdate(price, size float64, ts time.Time) {
	bucket := ts.Truncate(a.granularity)

	a.mu.Lock()
	var (
		closed domain.Candle
		emit   bool
		subs   []Subscriber
	)
	switch {
	case a.current == nil:
		a.current = &domain.Candle{
			BucketStart: bucket,
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
			Volume:      size,
		}
	case bucket.Equal(a.current.BucketStart):
		if price > a.current.High {
			a.current.High = price
		}
		if price < a.current.Low {
			a.current.Low = price
		}
		a.current.Close = price
		a.current.Volume += size
	case bucket.After(a.current.BucketStart):
		closed = *a.current
		emit = true
		subs = a.subs
		a.current = &domain.Candle{
			BucketStart: bucket,
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
			Volume:      size,
		}
	default:
		// Late tick for an already-closed bucket.
		open := a.current.BucketStart
		a.mu.Unlock()
		a.logger.Debug("dropping late tick",
			slog.Time("tick_bucket", bucket),
			slog.Time("open_bucket", open),
		)
		return
	}
	a.mu.Unlock()

	if emit {
		for _, fn := range subs {
			fn(closed)
		}
	}
}

// CurrentCandle returns a copy of the in-progress bar, or false when no tick
// has arrived yet.
func (a *Aggregator) CurrentCandle() (domain.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return domain.Candle{}, false
	}
	return *a.current, true
}
