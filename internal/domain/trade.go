package domain

import "time"

// OrderType distinguishes the two simulated order kinds.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Order is a simulated order request. Market and limit orders share one
// execution path; LimitPrice is only meaningful when Type is OrderTypeLimit.
type Order struct {
	ID         string
	Type       OrderType
	Side       Side
	Size       float64
	LimitPrice float64
}

// MarketOrder builds a market order request.
func MarketOrder(id string, side Side, size float64) Order {
	return Order{ID: id, Type: OrderTypeMarket, Side: side, Size: size}
}

// LimitOrder builds a limit order request.
func LimitOrder(id string, side Side, size, limitPrice float64) Order {
	return Order{ID: id, Type: OrderTypeLimit, Side: side, Size: size, LimitPrice: limitPrice}
}

// TradeStatus is the terminal outcome of a simulated order. There are no
// further transitions; resting orders that fill later are not modeled.
type TradeStatus string

const (
	TradeStatusFilled          TradeStatus = "filled"
	TradeStatusPartiallyFilled TradeStatus = "partially_filled"
	TradeStatusUnfilled        TradeStatus = "unfilled"
)

// SimulatedTrade is the audit record of one simulated execution attempt.
// Created once, appended to history, never mutated afterwards.
type SimulatedTrade struct {
	OrderID           string
	InstrumentID      string
	Type              OrderType
	Side              Side
	RequestedSize     float64
	FilledSize        float64
	RequestedPrice    float64 // limit price; 0 for market orders
	AveragePrice      float64
	WorstPrice        float64
	MidAtExecution    float64
	SpreadAtExecution SpreadMetrics
	SlippageBps       float64
	LevelsConsumed    int
	Status            TradeStatus
	Reason            string
	Timestamp         time.Time
}

// ExecutionStats aggregates the simulator's trade history.
type ExecutionStats struct {
	TotalOrders      int
	FilledOrders     int
	PartialFills     int
	UnfilledOrders   int
	FillRate         float64 // filled / total
	MeanSlippageBps  float64
	MaxSlippageBps   float64
	TotalSlippageUSD float64 // Σ filled_size × slippage_bps / 10000
}
