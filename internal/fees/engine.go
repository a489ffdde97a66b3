package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"CypherFeed/internal/domain/models"
)

const satsPerBTC = 100_000_000

var ten4 = decimal.NewFromInt(10000)

// PriceSource supplies the BTC price used to express the network fee
// in quote units.
type PriceSource interface {
	Last(symbol string) (float64, bool)
}

// Engine computes fee breakdowns from the tier schedule, the network
// estimator, and the configured service fee.
type Engine struct {
	tiers         []Tier
	est           *NetworkEstimator
	prices        PriceSource
	serviceFeeBps decimal.Decimal
	btcSymbol     string
}

func NewEngine(tiers []Tier, est *NetworkEstimator, prices PriceSource, serviceFeeBps float64) *Engine {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	return &Engine{
		tiers:         tiers,
		est:           est,
		prices:        prices,
		serviceFeeBps: decimal.NewFromFloat(serviceFeeBps),
		btcSymbol:     "BTCUSDT",
	}
}

// Calculate itemizes venue, network, and service fees for an amount in
// quote units. The network fee needs a live BTC price to convert from
// sats.
func (e *Engine) Calculate(req models.FeeCalcRequest) (*models.FeeBreakdown, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("fees: amount must be positive")
	}
	amount := decimal.NewFromFloat(req.Amount)

	tier := TierFor(e.tiers, req.Volume30)
	venueFee := amount.Mul(decimal.NewFromFloat(tier.TakerBps)).Div(ten4)
	serviceFee := amount.Mul(e.serviceFeeBps).Div(ten4)

	priority := models.FeePriority(req.Priority)
	if priority == "" {
		priority = models.PriorityMedium
	}
	btcPrice, ok := e.prices.Last(e.btcSymbol)
	if !ok || btcPrice <= 0 {
		return nil, fmt.Errorf("fees: no %s price for network fee conversion", e.btcSymbol)
	}
	vbytes := req.TxVBytes
	if vbytes <= 0 {
		vbytes = 140
	}
	sats := decimal.NewFromFloat(e.est.SatVB(priority)).Mul(decimal.NewFromFloat(vbytes))
	networkFee := sats.Div(decimal.NewFromInt(satsPerBTC)).Mul(decimal.NewFromFloat(btcPrice))

	total := venueFee.Add(networkFee).Add(serviceFee)
	return &models.FeeBreakdown{
		VenueFee:      venueFee,
		NetworkFee:    networkFee,
		ServiceFee:    serviceFee,
		Total:         total,
		EffectiveRate: total.Div(amount),
		FeeTier:       tier.Name,
		Priority:      priority,
	}, nil
}

// Estimate exposes the current network estimate for the fees endpoint.
func (e *Engine) Estimate() models.NetworkEstimate {
	return e.est.Current()
}
