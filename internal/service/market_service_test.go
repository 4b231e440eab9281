package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alephtrade/booksim/internal/book"
	"github.com/alephtrade/booksim/internal/domain"
	"github.com/alephtrade/booksim/internal/liquidity"
	"github.com/alephtrade/booksim/internal/pricing"
)

type memContextCache struct {
	mu   sync.Mutex
	last map[string]domain.MarketContext
}

func (c *memContextCache) SetContext(_ context.Context, mc domain.MarketContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = make(map[string]domain.MarketContext)
	}
	c.last[mc.InstrumentID] = mc
	return nil
}

func (c *memContextCache) GetContext(_ context.Context, id string) (domain.MarketContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.last[id]
	if !ok {
		return domain.MarketContext{}, domain.ErrNotFound
	}
	return mc, nil
}

type memCandleCache struct {
	mu      sync.Mutex
	candles []domain.Candle
}

func (c *memCandleCache) AppendCandle(_ context.Context, _ string, _ time.Duration, cd domain.Candle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candles = append(c.candles, cd)
	return nil
}

func (c *memCandleCache) RecentCandles(_ context.Context, _ string, _ time.Duration, _ int) ([]domain.Candle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Candle, len(c.candles))
	copy(out, c.candles)
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestService(t *testing.T, contexts domain.ContextCache, candles domain.CandleCache) *MarketService {
	t.Helper()
	svc, err := NewMarketService(
		[]string{"BTC-USD"},
		pricing.DefaultConfig(),
		liquidity.DefaultConfig(),
		[]time.Duration{time.Minute},
		contexts,
		candles,
		nil,
		testLogger(),
	)
	require.NoError(t, err)
	return svc
}

func TestHandleSnapshotPublishesContext(t *testing.T) {
	contexts := &memContextCache{}
	svc := newTestService(t, contexts, nil)

	snap := book.DefaultSyntheticConfig("BTC-USD", 45000).Snapshot(1, time.Now())
	svc.HandleSnapshot(context.Background(), snap)

	mc, err := contexts.GetContext(context.Background(), "BTC-USD")
	require.NoError(t, err)
	assert.InDelta(t, 45000.0, mc.MidPrice, 1)
	assert.True(t, mc.SmallOrderEst.CanFill)
	assert.Positive(t, mc.Liquidity.QualityScore, "liquidity analyzer is attached")

	// The same context is available from in-process state.
	got, err := svc.Context("BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, mc.MidPrice, got.MidPrice)
}

func TestHandleSnapshotIgnoresUntrackedInstrument(t *testing.T) {
	contexts := &memContextCache{}
	svc := newTestService(t, contexts, nil)

	snap := book.DefaultSyntheticConfig("DOGE-USD", 1).Snapshot(1, time.Now())
	svc.HandleSnapshot(context.Background(), snap)

	_, err := contexts.GetContext(context.Background(), "DOGE-USD")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHandleUpdateSequenceGapRequestsResync(t *testing.T) {
	svc := newTestService(t, nil, nil)

	var resynced []string
	svc.SetResync(func(id string) { resynced = append(resynced, id) })

	snap := book.DefaultSyntheticConfig("BTC-USD", 45000).Snapshot(10, time.Now())
	svc.HandleSnapshot(context.Background(), snap)

	svc.HandleUpdate(context.Background(), domain.BookUpdate{
		InstrumentID: "BTC-USD",
		Sequence:     20, // gap
	})

	assert.Equal(t, []string{"BTC-USD"}, resynced)

	// Last-known-good book stays readable.
	b, err := svc.Book("BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), b.Sequence)
}

func TestHandleTickFeedsCandles(t *testing.T) {
	candles := &memCandleCache{}
	svc := newTestService(t, nil, candles)

	snap := book.DefaultSyntheticConfig("BTC-USD", 45000).Snapshot(1, time.Now())
	svc.HandleSnapshot(context.Background(), snap)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	svc.HandleTick(context.Background(), domain.Tick{
		InstrumentID: "BTC-USD", Price: 45000, Size: 1, Timestamp: base,
	})
	svc.HandleTick(context.Background(), domain.Tick{
		InstrumentID: "BTC-USD", Price: 45010, Size: 2, Timestamp: base.Add(30 * time.Second),
	})
	// Next bucket closes the first bar.
	svc.HandleTick(context.Background(), domain.Tick{
		InstrumentID: "BTC-USD", Price: 45020, Size: 1, Timestamp: base.Add(61 * time.Second),
	})

	stored, err := candles.RecentCandles(context.Background(), "BTC-USD", time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 45000.0, stored[0].Open)
	assert.Equal(t, 45010.0, stored[0].Close)
	assert.Equal(t, 3.0, stored[0].Volume)

	// Tick price feeds the provider's last-trade field.
	mc, err := svc.Context("BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, 45020.0, mc.LastTradePrice)
}

func TestAccessorsUnknownInstrument(t *testing.T) {
	svc := newTestService(t, nil, nil)

	_, err := svc.Provider("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Analyzer("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Book("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Context("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
