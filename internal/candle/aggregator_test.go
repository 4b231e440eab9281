package candle

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alephtrade/booksim/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

var bucketStart = time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

func TestNewAggregatorRejectsNonPositiveGranularity(t *testing.T) {
	_, err := NewAggregator(0, testLogger())
	require.Error(t, err)
	_, err = NewAggregator(-time.Minute, testLogger())
	require.Error(t, err)
}

func TestFirstTickOpensBar(t *testing.T) {
	a, err := NewAggregator(time.Minute, testLogger())
	require.NoError(t, err)

	_, ok := a.CurrentCandle()
	assert.False(t, ok)

	a.OnPriceUpdate(100, 2, bucketStart.Add(10*time.Second))

	c, ok := a.CurrentCandle()
	require.True(t, ok)
	assert.Equal(t, bucketStart, c.BucketStart)
	assert.Equal(t, domain.Candle{
		BucketStart: bucketStart,
		Open:        100, High: 100, Low: 100, Close: 100,
		Volume: 2,
	}, c)
}

func TestTicksFoldIntoOpenBar(t *testing.T) {
	a, err := NewAggregator(time.Minute, testLogger())
	require.NoError(t, err)

	a.OnPriceUpdate(100, 1, bucketStart.Add(1*time.Second))
	a.OnPriceUpdate(105, 2, bucketStart.Add(20*time.Second))
	a.OnPriceUpdate(95, 3, bucketStart.Add(40*time.Second))
	a.OnPriceUpdate(101, 1, bucketStart.Add(59*time.Second))

	c, ok := a.CurrentCandle()
	require.True(t, ok)
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 105.0, c.High)
	assert.Equal(t, 95.0, c.Low)
	assert.Equal(t, 101.0, c.Close)
	assert.Equal(t, 7.0, c.Volume)
}

func TestBucketRolloverEmitsClosedBar(t *testing.T) {
	a, err := NewAggregator(time.Minute, testLogger())
	require.NoError(t, err)

	var emitted []domain.Candle
	a.Subscribe(func(c domain.Candle) { emitted = append(emitted, c) })

	a.OnPriceUpdate(100, 1, bucketStart.Add(10*time.Second))
	a.OnPriceUpdate(102, 1, bucketStart.Add(50*time.Second))
	require.Empty(t, emitted, "open bar is never delivered")

	// First tick of the next bucket closes the previous bar.
	a.OnPriceUpdate(103, 2, bucketStart.Add(61*time.Second))

	require.Len(t, emitted, 1)
	assert.Equal(t, bucketStart, emitted[0].BucketStart)
	assert.Equal(t, 100.0, emitted[0].Open)
	assert.Equal(t, 102.0, emitted[0].Close)
	assert.Equal(t, 2.0, emitted[0].Volume)

	c, ok := a.CurrentCandle()
	require.True(t, ok)
	assert.Equal(t, bucketStart.Add(time.Minute), c.BucketStart)
	assert.Equal(t, 103.0, c.Open)
}

func TestGapSkipsEmptyBuckets(t *testing.T) {
	a, err := NewAggregator(time.Minute, testLogger())
	require.NoError(t, err)

	var emitted []domain.Candle
	a.Subscribe(func(c domain.Candle) { emitted = append(emitted, c) })

	a.OnPriceUpdate(100, 1, bucketStart)
	// No ticks for three minutes; no bars synthesized for the empty buckets.
	a.OnPriceUpdate(110, 1, bucketStart.Add(3*time.Minute))

	require.Len(t, emitted, 1)
	assert.Equal(t, bucketStart, emitted[0].BucketStart)

	c, _ := a.CurrentCandle()
	assert.Equal(t, bucketStart.Add(3*time.Minute), c.BucketStart)
}

func TestLateTickIsDropped(t *testing.T) {
	a, err := NewAggregator(time.Minute, testLogger())
	require.NoError(t, err)

	var emitted []domain.Candle
	a.Subscribe(func(c domain.Candle) { emitted = append(emitted, c) })

	a.OnPriceUpdate(100, 1, bucketStart.Add(time.Minute))
	a.OnPriceUpdate(999, 9, bucketStart.Add(30*time.Second)) // previous bucket

	assert.Empty(t, emitted)
	c, ok := a.CurrentCandle()
	require.True(t, ok)
	assert.Equal(t, 100.0, c.Close, "late tick did not touch the open bar")
	assert.Equal(t, 1.0, c.Volume)
}

func TestMultipleSubscribersEachReceiveBar(t *testing.T) {
	a, err := NewAggregator(time.Minute, testLogger())
	require.NoError(t, err)

	var first, second int
	a.Subscribe(func(domain.Candle) { first++ })
	a.Subscribe(func(domain.Candle) { second++ })

	a.OnPriceUpdate(100, 1, bucketStart)
	a.OnPriceUpdate(101, 1, bucketStart.Add(time.Minute))
	a.OnPriceUpdate(102, 1, bucketStart.Add(2*time.Minute))

	assert.Equal(t, 2, first)
	assert.Equal(t, 2, second)
}

func TestCurrentCandleReturnsCopy(t *testing.T) {
	a, err := NewAggregator(time.Minute, testLogger())
	require.NoError(t, err)

	a.OnPriceUpdate(100, 1, bucketStart)
	c, _ := a.CurrentCandle()
	c.Close = 999

	got, _ := a.CurrentCandle()
	assert.Equal(t, 100.0, got.Close)
}
