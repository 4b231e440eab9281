package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alephtrade/booksim/internal/domain"
)

// SimTradeStore persists simulated trades to the sim_trades table.
type SimTradeStore struct {
	client *Client
}

var _ domain.SimTradeStore = (*SimTradeStore)(nil)

// NewSimTradeStore creates a trade store backed by the given client.
func NewSimTradeStore(client *Client) *SimTradeStore {
	return &SimTradeStore{client: client}
}

const insertTradeSQL = `
	INSERT INTO sim_trades (
		order_id, instrument_id, order_type, side,
		requested_size, filled_size, requested_price,
		average_price, worst_price, mid_at_execution,
		spread_dollars, spread_percent, spread_bps,
		slippage_bps, levels_consumed, status, reason, executed_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18
	)`

func tradeArgs(t domain.SimulatedTrade) []any {
	return []any{
		t.OrderID, t.InstrumentID, string(t.Type), string(t.Side),
		t.RequestedSize, t.FilledSize, t.RequestedPrice,
		t.AveragePrice, t.WorstPrice, t.MidAtExecution,
		t.SpreadAtExecution.Dollars, t.SpreadAtExecution.Percent, t.SpreadAtExecution.BasisPoints,
		t.SlippageBps, t.LevelsConsumed, string(t.Status), t.Reason, t.Timestamp,
	}
}

// Insert stores a single simulated trade.
func (s *SimTradeStore) Insert(ctx context.Context, t domain.SimulatedTrade) error {
	if _, err := s.client.pool.Exec(ctx, insertTradeSQL, tradeArgs(t)...); err != nil {
		return fmt.Errorf("postgres: insert sim trade %s: %w", t.OrderID, err)
	}
	return nil
}

// InsertBatch stores multiple trades in one round trip.
func (s *SimTradeStore) InsertBatch(ctx context.Context, trades []domain.SimulatedTrade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(insertTradeSQL, tradeArgs(t)...)
	}

	results := s.client.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range trades {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert sim trade batch item %d: %w", i, err)
		}
	}
	return nil
}

const listTradesSQL = `
	SELECT
		order_id, instrument_id, order_type, side,
		requested_size, filled_size, requested_price,
		average_price, worst_price, mid_at_execution,
		spread_dollars, spread_percent, spread_bps,
		slippage_bps, levels_consumed, status, reason, executed_at
	FROM sim_trades
	WHERE instrument_id = $1
	ORDER BY executed_at DESC
	LIMIT $2`

// ListByInstrument returns the most recent trades for an instrument, newest
// first.
func (s *SimTradeStore) ListByInstrument(ctx context.Context, instrumentID string, limit int) ([]domain.SimulatedTrade, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.client.pool.Query(ctx, listTradesSQL, instrumentID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sim trades for %s: %w", instrumentID, err)
	}
	defer rows.Close()

	var trades []domain.SimulatedTrade
	for rows.Next() {
		var (
			t               domain.SimulatedTrade
			orderType, side string
			status          string
		)
		err := rows.Scan(
			&t.OrderID, &t.InstrumentID, &orderType, &side,
			&t.RequestedSize, &t.FilledSize, &t.RequestedPrice,
			&t.AveragePrice, &t.WorstPrice, &t.MidAtExecution,
			&t.SpreadAtExecution.Dollars, &t.SpreadAtExecution.Percent, &t.SpreadAtExecution.BasisPoints,
			&t.SlippageBps, &t.LevelsConsumed, &status, &t.Reason, &t.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan sim trade: %w", err)
		}
		t.Type = domain.OrderType(orderType)
		t.Side = domain.Side(side)
		t.Status = domain.TradeStatus(status)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate sim trades: %w", err)
	}
	return trades, nil
}

// CountByStatus returns trade counts for an instrument keyed by status.
func (s *SimTradeStore) CountByStatus(ctx context.Context, instrumentID string) (map[domain.TradeStatus]int64, error) {
	rows, err := s.client.pool.Query(ctx,
		"SELECT status, COUNT(*) FROM sim_trades WHERE instrument_id = $1 GROUP BY status",
		instrumentID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: count sim trades for %s: %w", instrumentID, err)
	}
	defer rows.Close()

	counts := make(map[domain.TradeStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan trade count: %w", err)
		}
		counts[domain.TradeStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate trade counts: %w", err)
	}
	return counts, nil
}
