package book

import (
	"errors"
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

func baseSnapshot(seq uint64) domain.BookSnapshot {
	return domain.BookSnapshot{
		InstrumentID: "BTC-USD",
		Bids: []domain.PriceLevel{
			{Price: 44999.5, Size: 0.5},
			{Price: 44998.5, Size: 1.0},
		},
		Asks: []domain.PriceLevel{
			{Price: 45000.5, Size: 0.5},
			{Price: 45001.5, Size: 1.0},
		},
		Sequence:  seq,
		Timestamp: time.Now(),
	}
}

func TestApplySnapshotSortsAndDropsEmptyLevels(t *testing.T) {
	b := New("BTC-USD", testLogger())

	snap := domain.BookSnapshot{
		InstrumentID: "BTC-USD",
		Bids: []domain.PriceLevel{
			{Price: 44998.5, Size: 1.0},
			{Price: 44999.5, Size: 0.5},
			{Price: 44997.5, Size: 0}, // dropped
		},
		Asks: []domain.PriceLevel{
			{Price: 45001.5, Size: 1.0},
			{Price: 45000.5, Size: 0.5},
		},
		Sequence: 10,
	}
	require.NoError(t, b.ApplySnapshot(snap))

	got := b.Snapshot()
	require.Len(t, got.Bids, 2)
	require.Len(t, got.Asks, 2)
	assert.Equal(t, 44999.5, got.Bids[0].Price, "bids sorted descending")
	assert.Equal(t, 45000.5, got.Asks[0].Price, "asks sorted ascending")
	assert.Equal(t, uint64(10), got.Sequence)
	assert.False(t, b.Stale())
}

func TestApplySnapshotRejectsCrossedBook(t *testing.T) {
	b := New("BTC-USD", testLogger())
	require.NoError(t, b.ApplySnapshot(baseSnapshot(1)))

	crossed := domain.BookSnapshot{
		InstrumentID: "BTC-USD",
		Bids:         []domain.PriceLevel{{Price: 45002, Size: 1}},
		Asks:         []domain.PriceLevel{{Price: 45001, Size: 1}},
		Sequence:     2,
	}
	err := b.ApplySnapshot(crossed)
	require.ErrorIs(t, err, domain.ErrCrossedBook)

	// Previous state is untouched.
	got := b.Snapshot()
	assert.Equal(t, uint64(1), got.Sequence)
	assert.Equal(t, 44999.5, got.BestBid().Price)
}

func TestApplyUpdateInsertUpdateRemove(t *testing.T) {
	b := New("BTC-USD", testLogger())
	require.NoError(t, b.ApplySnapshot(baseSnapshot(100)))

	err := b.ApplyUpdate(domain.BookUpdate{
		InstrumentID: "BTC-USD",
		Sequence:     101,
		Changes: []domain.LevelChange{
			{Side: domain.SideBuy, Price: 44999.0, Size: 2.0},  // insert between
			{Side: domain.SideSell, Price: 45000.5, Size: 0.7}, // update top
			{Side: domain.SideSell, Price: 45001.5, Size: 0},   // remove
		},
	})
	require.NoError(t, err)

	got := b.Snapshot()
	require.Len(t, got.Bids, 3)
	assert.Equal(t, []domain.PriceLevel{
		{Price: 44999.5, Size: 0.5},
		{Price: 44999.0, Size: 2.0},
		{Price: 44998.5, Size: 1.0},
	}, got.Bids)
	require.Len(t, got.Asks, 1)
	assert.Equal(t, domain.PriceLevel{Price: 45000.5, Size: 0.7}, got.Asks[0])
	assert.Equal(t, uint64(101), got.Sequence)
}

func TestApplyUpdateDropsDuplicateSequence(t *testing.T) {
	b := New("BTC-USD", testLogger())
	require.NoError(t, b.ApplySnapshot(baseSnapshot(100)))

	err := b.ApplyUpdate(domain.BookUpdate{
		Sequence: 100,
		Changes:  []domain.LevelChange{{Side: domain.SideBuy, Price: 1, Size: 1}},
	})
	require.NoError(t, err, "duplicate is dropped silently")

	got := b.Snapshot()
	assert.Equal(t, uint64(100), got.Sequence)
	assert.Len(t, got.Bids, 2, "book unchanged")
}

func TestApplyUpdateSequenceGapTriggersResync(t *testing.T) {
	b := New("BTC-USD", testLogger())

	var resynced []string
	b.OnResync(func(id string) { resynced = append(resynced, id) })
	require.NoError(t, b.ApplySnapshot(baseSnapshot(100)))

	err := b.ApplyUpdate(domain.BookUpdate{Sequence: 105})
	require.ErrorIs(t, err, domain.ErrSequenceGap)
	assert.True(t, b.Stale())
	assert.Equal(t, []string{"BTC-USD"}, resynced)

	// Subsequent updates are rejected until a fresh snapshot lands.
	err = b.ApplyUpdate(domain.BookUpdate{Sequence: 106})
	require.ErrorIs(t, err, domain.ErrStaleBook)

	// Last-known-good stays visible to readers during the resync window.
	got := b.Snapshot()
	assert.Equal(t, uint64(100), got.Sequence)
	assert.Equal(t, 44999.5, got.BestBid().Price)

	// A new snapshot clears the stale flag.
	require.NoError(t, b.ApplySnapshot(baseSnapshot(200)))
	assert.False(t, b.Stale())
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{Sequence: 201}))
}

func TestApplyUpdateCrossedResultTriggersResync(t *testing.T) {
	b := New("BTC-USD", testLogger())

	var resynced int
	b.OnResync(func(string) { resynced++ })
	require.NoError(t, b.ApplySnapshot(baseSnapshot(100)))

	err := b.ApplyUpdate(domain.BookUpdate{
		Sequence: 101,
		Changes: []domain.LevelChange{
			{Side: domain.SideBuy, Price: 45002, Size: 1},
		},
	})
	require.ErrorIs(t, err, domain.ErrCrossedBook)
	assert.True(t, b.Stale())
	assert.Equal(t, 1, resynced)

	// The crossed working copy was discarded.
	got := b.Snapshot()
	assert.Equal(t, 44999.5, got.BestBid().Price)
	assert.Equal(t, uint64(100), got.Sequence)
}

func TestApplyUpdateUnknownSide(t *testing.T) {
	b := New("BTC-USD", testLogger())
	require.NoError(t, b.ApplySnapshot(baseSnapshot(100)))

	err := b.ApplyUpdate(domain.BookUpdate{
		Sequence: 101,
		Changes:  []domain.LevelChange{{Side: "hold", Price: 1, Size: 1}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownSide))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	b := New("BTC-USD", testLogger())
	require.NoError(t, b.ApplySnapshot(baseSnapshot(1)))

	got := b.Snapshot()
	got.Bids[0].Size = 999

	assert.Equal(t, 0.5, b.Snapshot().Bids[0].Size)
}

func TestSyntheticSnapshotShape(t *testing.T) {
	cfg := DefaultSyntheticConfig("BTC-USD", 45000)
	snap := cfg.Snapshot(1, time.Now())

	require.Len(t, snap.Bids, cfg.Levels)
	require.Len(t, snap.Asks, cfg.Levels)

	b := New("BTC-USD", testLogger())
	require.NoError(t, b.ApplySnapshot(snap))

	got := b.Snapshot()
	assert.False(t, got.Crossed())
	assert.Greater(t, got.BestAsk().Price, got.BestBid().Price)

	// Sorted best-first on both sides, sizes growing with depth.
	for i := 1; i < len(got.Bids); i++ {
		assert.Less(t, got.Bids[i].Price, got.Bids[i-1].Price)
		assert.Greater(t, got.Bids[i].Size, got.Bids[i-1].Size)
	}
	for i := 1; i < len(got.Asks); i++ {
		assert.Greater(t, got.Asks[i].Price, got.Asks[i-1].Price)
	}
}

func TestSyntheticImbalanceSkewsSizes(t *testing.T) {
	cfg := DefaultSyntheticConfig("BTC-USD", 45000)
	cfg.ImbalancePct = 50
	snap := cfg.Snapshot(1, time.Now())

	assert.InDelta(t, 1.5*cfg.BaseSize, snap.Bids[0].Size, 1e-9)
	assert.InDelta(t, 0.5*cfg.BaseSize, snap.Asks[0].Size, 1e-9)
}
