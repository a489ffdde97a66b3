package models

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Order is a simulated fill produced by the paper broker.
type Order struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Price      float64   `json:"price"`
	BaseSize   float64   `json:"base_size"`
	QuoteSpent float64   `json:"quote_spent"`
	CreateTime time.Time `json:"create_time"`
}

// SignalAction is what a trading signal recommends.
type SignalAction string

const (
	ActionBuy  SignalAction = "buy"
	ActionSell SignalAction = "sell"
	ActionHold SignalAction = "hold"
)

// Signal is an analysis verdict for a symbol at a point in time.
type Signal struct {
	Symbol    string       `json:"symbol"`
	Action    SignalAction `json:"action"`
	FastSMA   float64      `json:"fast_sma"`
	SlowSMA   float64      `json:"slow_sma"`
	RSI       float64      `json:"rsi"`
	Reason    string       `json:"reason"`
	Timestamp time.Time    `json:"timestamp"`
}

// Position is the current holding for one symbol.
type Position struct {
	Symbol      string  `json:"symbol"`
	BaseSize    float64 `json:"base_size"`
	AvgCost     float64 `json:"avg_cost"`
	LastPrice   float64 `json:"last_price"`
	Unrealized  float64 `json:"unrealized_pnl"`
	Realized    float64 `json:"realized_pnl"`
	MarketValue float64 `json:"market_value"`
}

// PortfolioSnapshot is a point-in-time view of all positions.
type PortfolioSnapshot struct {
	Positions  []Position `json:"positions"`
	CashQuote  float64    `json:"cash_quote"`
	Equity     float64    `json:"equity"`
	Realized   float64    `json:"realized_pnl"`
	Unrealized float64    `json:"unrealized_pnl"`
	Timestamp  time.Time  `json:"timestamp"`
}

// EngineStatus reports the auto-trading controller state.
type EngineStatus struct {
	Running     bool               `json:"running"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	Symbols     []string           `json:"symbols"`
	OrdersTotal int64              `json:"orders_total"`
	LastSignals map[string]*Signal `json:"last_signals,omitempty"`
	DailyPnL    float64            `json:"daily_pnl"`
	Halted      bool               `json:"halted"` // risk limit tripped
	HaltReason  string             `json:"halt_reason,omitempty"`
}
