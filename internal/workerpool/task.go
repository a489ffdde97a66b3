package workerpool

import (
	"time"

	"CypherFeed/internal/domain/models"
)

// TaskType tags a task with the handler that executes it.
type TaskType string

const (
	TaskSMA        TaskType = "sma"
	TaskEMA        TaskType = "ema"
	TaskRSI        TaskType = "rsi"
	TaskPattern    TaskType = "pattern"
	TaskSentiment  TaskType = "sentiment"
	TaskVolatility TaskType = "volatility"
)

// Task is a unit of analysis work. Higher Priority runs first;
// equal priorities run in submission order.
type Task struct {
	Type     TaskType
	Priority int
	Payload  any
	Timeout  time.Duration // 0 uses the pool default
}

// Result carries a task outcome back to the submitter.
type Result struct {
	Value   any
	Err     error
	Elapsed time.Duration
}

// SeriesPayload feeds SMA/RSI tasks.
type SeriesPayload struct {
	Symbol string
	Values []float64
	Period int
}

// CandlesPayload feeds pattern tasks.
type CandlesPayload struct {
	Symbol  string
	Candles []models.Candle
}

// VolatilityPayload feeds realized-volatility tasks. Timeframe sets
// the annualization factor.
type VolatilityPayload struct {
	Symbol    string
	Candles   []models.Candle
	Window    int
	Timeframe string
}

// TextsPayload feeds sentiment tasks.
type TextsPayload struct {
	Symbol string
	Texts  []string
}
