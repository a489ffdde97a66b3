package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeePriority selects a network confirmation target.
type FeePriority string

const (
	PriorityLow    FeePriority = "low"
	PriorityMedium FeePriority = "medium"
	PriorityHigh   FeePriority = "high"
)

// NetworkEstimate holds current sat/vB rates per priority.
type NetworkEstimate struct {
	LowSatVB    float64   `json:"low_sat_vb"`
	MediumSatVB float64   `json:"medium_sat_vb"`
	HighSatVB   float64   `json:"high_sat_vb"`
	FetchedAt   time.Time `json:"fetched_at"`
	Source      string    `json:"source"` // "remote" or "static"
}

// FeeBreakdown itemizes the cost of an operation.
type FeeBreakdown struct {
	VenueFee      decimal.Decimal `json:"venue_fee"`
	NetworkFee    decimal.Decimal `json:"network_fee"`
	ServiceFee    decimal.Decimal `json:"service_fee"`
	Total         decimal.Decimal `json:"total"`
	EffectiveRate decimal.Decimal `json:"effective_rate"` // total / amount
	FeeTier       string          `json:"fee_tier"`
	Priority      FeePriority     `json:"priority"`
}
