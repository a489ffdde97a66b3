package models

// Requests for HTTP endpoints. Defined in domain for consistency and reuse.

type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	Limit  int    `query:"limit" json:"limit" default:"1000" validate:"gte=1,lte=50000"`
}

type QuoteHTTPRequest struct {
	BaseAsset  string  `json:"base_asset" validate:"required"`
	QuoteAsset string  `json:"quote_asset" default:"USDT"`
	Side       string  `json:"side" default:"sell" validate:"oneof=buy sell"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
}

type FeeCalcRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Venue    string  `json:"venue" validate:"required"`
	Volume30 float64 `json:"volume_30d" validate:"gte=0"`
	Priority string  `json:"priority" default:"medium" validate:"oneof=low medium high"`
	TxVBytes float64 `json:"tx_vbytes" default:"140" validate:"gt=0"`
}
