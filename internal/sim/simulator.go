// Package sim simulates market and limit order executions against the current
// order book and keeps an audit history of the results.
package sim

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alephtrade/booksim/internal/domain"
)

// Estimator is the slice of the pricing provider the simulator executes
// through. Implemented by *pricing.Provider.
type Estimator interface {
	EstimateExecutionPrice(side domain.Side, size float64) (domain.ExecutionEstimate, error)
	MarketContext() domain.MarketContext
}

// Simulator executes simulated orders. Liquidity exhaustion is never an
// error: it surfaces as a partially_filled or unfilled trade so batch callers
// can process thousands of orders without exception-driven control flow. The
// only hard failures are malformed inputs, rejected before any book access.
type Simulator struct {
	est    Estimator
	logger *slog.Logger

	mu      sync.Mutex
	history []domain.SimulatedTrade
}

// NewSimulator creates a Simulator executing against the given estimator.
func NewSimulator(est Estimator, logger *slog.Logger) *Simulator {
	return &Simulator{
		est:    est,
		logger: logger.With(slog.String("component", "sim")),
	}
}

// SimulateMarketOrder simulates an immediate execution of size at the current
// book. orderID may be empty, in which case one is generated.
func (s *Simulator) SimulateMarketOrder(side domain.Side, size float64, orderID string) (domain.SimulatedTrade, error) {
	return s.Simulate(domain.MarketOrder(orderID, side, size))
}

// SimulateLimitOrder simulates a marketable limit order: it fills at the
// prevailing book price only when the best opposite price satisfies the
// limit, and is unfilled otherwise. Resting is not modeled.
func (s *Simulator) SimulateLimitOrder(side domain.Side, size, limitPrice float64, orderID string) (domain.SimulatedTrade, error) {
	return s.Simulate(domain.LimitOrder(orderID, side, size, limitPrice))
}

// Simulate is the single execution path both order kinds dispatch through.
func (s *Simulator) Simulate(o domain.Order) (domain.SimulatedTrade, error) {
	if err := o.Side.Validate(); err != nil {
		return domain.SimulatedTrade{}, fmt.Errorf("sim: order %q: side %q: %w", o.ID, o.Side, err)
	}
	if o.Size <= 0 {
		return domain.SimulatedTrade{}, fmt.Errorf("sim: order %q: size %v: %w", o.ID, o.Size, domain.ErrInvalidSize)
	}
	if o.Type == domain.OrderTypeLimit && o.LimitPrice <= 0 {
		return domain.SimulatedTrade{}, fmt.Errorf("sim: order %q: limit price %v: %w", o.ID, o.LimitPrice, domain.ErrInvalidPrice)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	// Capture the execution metrics snapshot before building any trade
	// record; the book may move between calls.
	mctx := s.est.MarketContext()

	trade := domain.SimulatedTrade{
		OrderID:           o.ID,
		InstrumentID:      mctx.InstrumentID,
		Type:              o.Type,
		Side:              o.Side,
		RequestedSize:     o.Size,
		RequestedPrice:    o.LimitPrice,
		MidAtExecution:    mctx.MidPrice,
		SpreadAtExecution: mctx.Spread,
		Timestamp:         time.Now(),
	}

	if o.Type == domain.OrderTypeLimit {
		if rejected, reason := limitRejection(o, mctx.BestBid, mctx.BestAsk); rejected {
			trade.Status = domain.TradeStatusUnfilled
			trade.Reason = reason
			s.record(trade)
			return trade, nil
		}
	}

	est, err := s.est.EstimateExecutionPrice(o.Side, o.Size)
	if err != nil {
		return domain.SimulatedTrade{}, fmt.Errorf("sim: order %q: %w", o.ID, err)
	}

	switch {
	case est.CanFill:
		trade.Status = domain.TradeStatusFilled
		trade.FilledSize = o.Size
		trade.AveragePrice = est.AvgPrice
		trade.WorstPrice = est.WorstPrice
		trade.SlippageBps = est.SlippageBps
		trade.LevelsConsumed = est.LevelsConsumed

	case est.FillableSize > 0:
		// Re-walk at the fillable size so avg/worst describe exactly what
		// filled. FillableSize is structured on the estimate; the reason
		// text is display-only and never parsed.
		partial, perr := s.est.EstimateExecutionPrice(o.Side, est.FillableSize)
		if perr != nil {
			return domain.SimulatedTrade{}, fmt.Errorf("sim: order %q: partial re-walk: %w", o.ID, perr)
		}
		trade.Status = domain.TradeStatusPartiallyFilled
		trade.FilledSize = est.FillableSize
		trade.AveragePrice = partial.AvgPrice
		trade.WorstPrice = partial.WorstPrice
		trade.SlippageBps = partial.SlippageBps
		trade.LevelsConsumed = partial.LevelsConsumed
		trade.Reason = est.Reason

	default:
		trade.Status = domain.TradeStatusUnfilled
		trade.Reason = est.Reason
	}

	s.record(trade)
	return trade, nil
}

// limitRejection checks the limit gate against the best opposite-side price
// without touching the book-walk logic.
func limitRejection(o domain.Order, bestBid, bestAsk float64) (bool, string) {
	if o.Side == domain.SideBuy {
		if bestAsk <= 0 {
			return true, "no resting asks to execute against"
		}
		if bestAsk > o.LimitPrice {
			return true, fmt.Sprintf("best ask %v above buy limit %v", bestAsk, o.LimitPrice)
		}
		return false, ""
	}
	if bestBid <= 0 {
		return true, "no resting bids to execute against"
	}
	if bestBid < o.LimitPrice {
		return true, fmt.Sprintf("best bid %v below sell limit %v", bestBid, o.LimitPrice)
	}
	return false, ""
}

func (s *Simulator) record(t domain.SimulatedTrade) {
	s.mu.Lock()
	s.history = append(s.history, t)
	n := len(s.history)
	s.mu.Unlock()

	s.logger.Debug("simulated trade recorded",
		slog.String("order_id", t.OrderID),
		slog.String("status", string(t.Status)),
		slog.Float64("filled_size", t.FilledSize),
		slog.Float64("avg_price", t.AveragePrice),
		slog.Float64("slippage_bps", t.SlippageBps),
		slog.Int("history_len", n),
	)
}

// History returns a copy of the execution history in append order.
func (s *Simulator) History() []domain.SimulatedTrade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SimulatedTrade, len(s.history))
	copy(out, s.history)
	return out
}

// ClearHistory discards the execution history.
func (s *Simulator) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}
