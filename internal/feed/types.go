package feed

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alephtrade/booksim/internal/domain"
)

// wsCommand is the JSON payload sent upstream to subscribe, unsubscribe, or
// request a fresh snapshot.
type wsCommand struct {
	Type          string   `json:"type"`
	Channels      []string `json:"channels,omitempty"`
	InstrumentIDs []string `json:"instrument_ids"`
}

// SnapshotMessage is the full-replace depth message. Levels arrive as
// [price, size] string pairs.
type SnapshotMessage struct {
	Type         string     `json:"type"`
	InstrumentID string     `json:"instrument_id"`
	Sequence     uint64     `json:"sequence"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
	Time         string     `json:"time"`
}

// UpdateMessage is the incremental depth message. Changes arrive as
// [side, price, size] string triples; size "0" removes the level.
type UpdateMessage struct {
	Type         string     `json:"type"`
	InstrumentID string     `json:"instrument_id"`
	Sequence     uint64     `json:"sequence"`
	Changes      [][]string `json:"changes"`
	Time         string     `json:"time"`
}

// TradeMessage is a single trade print from the ticker channel.
type TradeMessage struct {
	Type         string `json:"type"`
	InstrumentID string `json:"instrument_id"`
	Price        string `json:"price"`
	Size         string `json:"size"`
	Time         string `json:"time"`
}

// ToDomain converts the wire snapshot into a domain.BookSnapshot.
func (m *SnapshotMessage) ToDomain() (domain.BookSnapshot, error) {
	bids, err := parseLevels(m.Bids)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("feed: snapshot bids: %w", err)
	}
	asks, err := parseLevels(m.Asks)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("feed: snapshot asks: %w", err)
	}
	return domain.BookSnapshot{
		InstrumentID: m.InstrumentID,
		Bids:         bids,
		Asks:         asks,
		Sequence:     m.Sequence,
		Timestamp:    parseTime(m.Time),
	}, nil
}

// ToDomain converts the wire delta into a domain.BookUpdate.
func (m *UpdateMessage) ToDomain() (domain.BookUpdate, error) {
	changes := make([]domain.LevelChange, 0, len(m.Changes))
	for i, ch := range m.Changes {
		if len(ch) != 3 {
			return domain.BookUpdate{}, fmt.Errorf("feed: update change %d: want [side, price, size], got %d fields", i, len(ch))
		}
		side, err := parseSide(ch[0])
		if err != nil {
			return domain.BookUpdate{}, fmt.Errorf("feed: update change %d: %w", i, err)
		}
		price, err := strconv.ParseFloat(ch[1], 64)
		if err != nil {
			return domain.BookUpdate{}, fmt.Errorf("feed: update change %d price %q: %w", i, ch[1], err)
		}
		size, err := strconv.ParseFloat(ch[2], 64)
		if err != nil {
			return domain.BookUpdate{}, fmt.Errorf("feed: update change %d size %q: %w", i, ch[2], err)
		}
		changes = append(changes, domain.LevelChange{Side: side, Price: price, Size: size})
	}
	return domain.BookUpdate{
		InstrumentID: m.InstrumentID,
		Changes:      changes,
		Sequence:     m.Sequence,
		Timestamp:    parseTime(m.Time),
	}, nil
}

// ToDomain converts the wire trade into a domain.Tick.
func (m *TradeMessage) ToDomain() (domain.Tick, error) {
	price, err := strconv.ParseFloat(m.Price, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("feed: trade price %q: %w", m.Price, err)
	}
	size := 0.0
	if m.Size != "" {
		if size, err = strconv.ParseFloat(m.Size, 64); err != nil {
			return domain.Tick{}, fmt.Errorf("feed: trade size %q: %w", m.Size, err)
		}
	}
	return domain.Tick{
		InstrumentID: m.InstrumentID,
		Price:        price,
		Size:         size,
		Timestamp:    parseTime(m.Time),
	}, nil
}

func parseLevels(raw [][]string) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for i, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("level %d: want [price, size], got %d fields", i, len(pair))
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("level %d price %q: %w", i, pair[0], err)
		}
		size, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("level %d size %q: %w", i, pair[1], err)
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}

func parseSide(s string) (domain.Side, error) {
	switch s {
	case "buy", "bid", "bids":
		return domain.SideBuy, nil
	case "sell", "ask", "asks":
		return domain.SideSell, nil
	default:
		return "", fmt.Errorf("side %q: %w", s, domain.ErrUnknownSide)
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Now()
}
