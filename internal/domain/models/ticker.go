package models

import "time"

// Ticker is a normalized price update from any market source.
type Ticker struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"t"` // unix seconds
	Price     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Source    string  `json:"source,omitempty"`
}

// Candle represents an OHLCV record aggregated from tickers.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
