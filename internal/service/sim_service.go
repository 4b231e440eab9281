package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alephtrade/booksim/internal/domain"
	"github.com/alephtrade/booksim/internal/sim"
)

// SimService runs simulated executions against the live per-instrument
// providers and optionally persists the resulting trade records.
type SimService struct {
	markets *MarketService
	store   domain.SimTradeStore // optional
	logger  *slog.Logger

	mu         sync.Mutex
	simulators map[string]*sim.Simulator
}

// NewSimService creates a SimService. store may be nil, in which case trades
// are kept only in the in-process history.
func NewSimService(markets *MarketService, store domain.SimTradeStore, logger *slog.Logger) *SimService {
	return &SimService{
		markets:    markets,
		store:      store,
		logger:     logger.With(slog.String("component", "sim_service")),
		simulators: make(map[string]*sim.Simulator),
	}
}

func (s *SimService) simulator(instrumentID string) (*sim.Simulator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if simr, ok := s.simulators[instrumentID]; ok {
		return simr, nil
	}
	provider, err := s.markets.Provider(instrumentID)
	if err != nil {
		return nil, fmt.Errorf("sim_service: %w", err)
	}
	simr := sim.NewSimulator(provider, s.logger)
	s.simulators[instrumentID] = simr
	return simr, nil
}

// Submit executes one simulated order against an instrument's current book
// and records the result. Liquidity exhaustion is reported via the trade
// status, not as an error.
func (s *SimService) Submit(ctx context.Context, instrumentID string, o domain.Order) (domain.SimulatedTrade, error) {
	simr, err := s.simulator(instrumentID)
	if err != nil {
		return domain.SimulatedTrade{}, err
	}

	trade, err := simr.Simulate(o)
	if err != nil {
		return domain.SimulatedTrade{}, err
	}
	trade.InstrumentID = instrumentID

	if s.store != nil {
		if err := s.store.Insert(ctx, trade); err != nil {
			s.logger.WarnContext(ctx, "trade persist failed",
				slog.String("order_id", trade.OrderID),
				slog.String("instrument_id", instrumentID),
				slog.String("error", err.Error()))
			// Non-fatal: the in-process history still has the record.
		}
	}
	return trade, nil
}

// SubmitBatch executes a batch of orders in sequence against the same
// instrument, persisting all results in one store round trip.
func (s *SimService) SubmitBatch(ctx context.Context, instrumentID string, orders []domain.Order) ([]domain.SimulatedTrade, error) {
	simr, err := s.simulator(instrumentID)
	if err != nil {
		return nil, err
	}

	trades := make([]domain.SimulatedTrade, 0, len(orders))
	for _, o := range orders {
		trade, err := simr.Simulate(o)
		if err != nil {
			return trades, fmt.Errorf("sim_service: order %q: %w", o.ID, err)
		}
		trade.InstrumentID = instrumentID
		trades = append(trades, trade)
	}

	if s.store != nil && len(trades) > 0 {
		if err := s.store.InsertBatch(ctx, trades); err != nil {
			s.logger.WarnContext(ctx, "batch persist failed",
				slog.String("instrument_id", instrumentID),
				slog.Int("count", len(trades)),
				slog.String("error", err.Error()))
		}
	}
	return trades, nil
}

// History returns the in-process execution history for an instrument.
func (s *SimService) History(instrumentID string) ([]domain.SimulatedTrade, error) {
	simr, err := s.simulator(instrumentID)
	if err != nil {
		return nil, err
	}
	return simr.History(), nil
}

// Statistics aggregates the in-process execution history for an instrument.
func (s *SimService) Statistics(instrumentID string) (domain.ExecutionStats, error) {
	simr, err := s.simulator(instrumentID)
	if err != nil {
		return domain.ExecutionStats{}, err
	}
	return simr.Statistics(), nil
}

// StoredHistory reads persisted trades from the store, newest first.
func (s *SimService) StoredHistory(ctx context.Context, instrumentID string, limit int) ([]domain.SimulatedTrade, error) {
	if s.store == nil {
		return nil, fmt.Errorf("sim_service: stored history: %w", domain.ErrNotFound)
	}
	trades, err := s.store.ListByInstrument(ctx, instrumentID, limit)
	if err != nil {
		return nil, fmt.Errorf("sim_service: stored history: %w", err)
	}
	return trades, nil
}
