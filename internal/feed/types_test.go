package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alephtrade/booksim/internal/domain"
)

func TestSnapshotMessageToDomain(t *testing.T) {
	msg := &SnapshotMessage{
		Type:         "snapshot",
		InstrumentID: "BTC-USD",
		Sequence:     17,
		Bids:         [][]string{{"44999.5", "0.5"}, {"44998.5", "1.0"}},
		Asks:         [][]string{{"45000.5", "0.5"}},
		Time:         "2026-08-29T10:00:00.5Z",
	}

	snap, err := msg.ToDomain()
	require.NoError(t, err)

	assert.Equal(t, "BTC-USD", snap.InstrumentID)
	assert.Equal(t, uint64(17), snap.Sequence)
	assert.Equal(t, []domain.PriceLevel{
		{Price: 44999.5, Size: 0.5},
		{Price: 44998.5, Size: 1.0},
	}, snap.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 45000.5, Size: 0.5}}, snap.Asks)
	assert.Equal(t, time.Date(2026, 8, 29, 10, 0, 0, 500_000_000, time.UTC), snap.Timestamp.UTC())
}

func TestSnapshotMessageBadLevel(t *testing.T) {
	msg := &SnapshotMessage{
		Bids: [][]string{{"not-a-price", "1"}},
	}
	_, err := msg.ToDomain()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bids")

	msg = &SnapshotMessage{
		Asks: [][]string{{"45000.5"}},
	}
	_, err = msg.ToDomain()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asks")
}

func TestUpdateMessageToDomain(t *testing.T) {
	msg := &UpdateMessage{
		Type:         "l2update",
		InstrumentID: "BTC-USD",
		Sequence:     18,
		Changes: [][]string{
			{"buy", "44999.0", "2.0"},
			{"sell", "45001.5", "0"},
		},
	}

	upd, err := msg.ToDomain()
	require.NoError(t, err)

	assert.Equal(t, uint64(18), upd.Sequence)
	require.Len(t, upd.Changes, 2)
	assert.Equal(t, domain.LevelChange{Side: domain.SideBuy, Price: 44999.0, Size: 2.0}, upd.Changes[0])
	assert.Equal(t, domain.LevelChange{Side: domain.SideSell, Price: 45001.5, Size: 0}, upd.Changes[1])
}

func TestUpdateMessageBadChange(t *testing.T) {
	_, err := (&UpdateMessage{Changes: [][]string{{"buy", "1"}}}).ToDomain()
	require.Error(t, err)

	_, err = (&UpdateMessage{Changes: [][]string{{"hold", "1", "1"}}}).ToDomain()
	require.ErrorIs(t, err, domain.ErrUnknownSide)

	_, err = (&UpdateMessage{Changes: [][]string{{"buy", "x", "1"}}}).ToDomain()
	require.Error(t, err)
}

func TestTradeMessageToDomain(t *testing.T) {
	msg := &TradeMessage{
		Type:         "trade",
		InstrumentID: "BTC-USD",
		Price:        "45000.25",
		Size:         "0.02",
		Time:         "2026-08-29T10:00:01Z",
	}

	tick, err := msg.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, 45000.25, tick.Price)
	assert.Equal(t, 0.02, tick.Size)

	// Missing size is reported as 0, not an error.
	tick, err = (&TradeMessage{Price: "45000.25"}).ToDomain()
	require.NoError(t, err)
	assert.Zero(t, tick.Size)

	_, err = (&TradeMessage{Price: "bad"}).ToDomain()
	require.Error(t, err)
}

func TestParseSideAliases(t *testing.T) {
	for _, alias := range []string{"buy", "bid", "bids"} {
		side, err := parseSide(alias)
		require.NoError(t, err)
		assert.Equal(t, domain.SideBuy, side)
	}
	for _, alias := range []string{"sell", "ask", "asks"} {
		side, err := parseSide(alias)
		require.NoError(t, err)
		assert.Equal(t, domain.SideSell, side)
	}
	_, err := parseSide("both")
	require.ErrorIs(t, err, domain.ErrUnknownSide)
}

func TestParseTimeFallsBackToNow(t *testing.T) {
	before := time.Now()
	got := parseTime("garbage")
	assert.False(t, got.Before(before))
}
