package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteRequest asks venues for pricing of a swap.
type QuoteRequest struct {
	ID         string
	BaseAsset  string
	QuoteAsset string
	Side       OrderSide
	Amount     decimal.Decimal // input size: quote asset for buys, base asset for sells
}

// Quote is one venue's answer to a QuoteRequest.
type Quote struct {
	Venue     string          `json:"venue"`
	Price     decimal.Decimal `json:"price"`
	OutAmount decimal.Decimal `json:"out_amount"` // gross, before fees
	FeeBps    decimal.Decimal `json:"fee_bps"`
	Depth     decimal.Decimal `json:"depth"` // base size quoted at this price
	Timestamp time.Time       `json:"timestamp"`
}

// RouteLeg is one venue allocation inside a route.
type RouteLeg struct {
	Venue     string          `json:"venue"`
	Amount    decimal.Decimal `json:"amount"` // base size routed to this venue
	Price     decimal.Decimal `json:"price"`
	NetOutput decimal.Decimal `json:"net_output"` // after venue fee
}

// Route is a ranked execution plan across one or more venues.
type Route struct {
	Legs      []RouteLeg      `json:"legs"`
	NetOutput decimal.Decimal `json:"net_output"` // after venue + network fees
	Split     bool            `json:"split"`
}

// AggregateResult is the full quote-comparison outcome.
type AggregateResult struct {
	RequestID string    `json:"request_id"`
	Quotes    []Quote   `json:"quotes"`
	Best      *Route    `json:"best,omitempty"`
	Failed    []string  `json:"failed,omitempty"` // venues that errored or timed out
	Timestamp time.Time `json:"timestamp"`
}
