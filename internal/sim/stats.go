package sim

import (
	"github.com/montanaflynn/stats"

	"github.com/alephtrade/booksim/internal/domain"
)

// Statistics aggregates the execution history: order counts by status, fill
// rate, mean and max slippage in bps, and total slippage in currency
// (Σ filled_size × slippage_bps / 10000).
func (s *Simulator) Statistics() domain.ExecutionStats {
	s.mu.Lock()
	history := make([]domain.SimulatedTrade, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	out := domain.ExecutionStats{TotalOrders: len(history)}
	if len(history) == 0 {
		return out
	}

	slippages := make([]float64, 0, len(history))
	for _, t := range history {
		switch t.Status {
		case domain.TradeStatusFilled:
			out.FilledOrders++
		case domain.TradeStatusPartiallyFilled:
			out.PartialFills++
		case domain.TradeStatusUnfilled:
			out.UnfilledOrders++
		}
		slippages = append(slippages, t.SlippageBps)
		out.TotalSlippageUSD += t.FilledSize * t.SlippageBps / 10000
	}

	out.FillRate = float64(out.FilledOrders) / float64(out.TotalOrders)
	if mean, err := stats.Mean(slippages); err == nil {
		out.MeanSlippageBps = mean
	}
	if max, err := stats.Max(slippages); err == nil {
		out.MaxSlippageBps = max
	}
	return out
}
