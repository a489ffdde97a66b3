package aggregator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"CypherFeed/internal/domain/models"
	drepo "CypherFeed/internal/domain/repository"
	"CypherFeed/pkg/config"
)

// PriceSource supplies the mid price a venue quotes around.
type PriceSource interface {
	Last(symbol string) (float64, bool)
}

// Venue is a QuoteProvider that prices off the last observed tick with
// a configured half-spread, fee, and depth. Latency is jittered up to
// the configured bound so fan-out timeouts are exercised realistically.
type Venue struct {
	cfg    config.VenueConfig
	prices PriceSource
	rng    *rand.Rand
}

// NewVenue builds one provider from its config entry.
func NewVenue(cfg config.VenueConfig, prices PriceSource) *Venue {
	return &Venue{
		cfg:    cfg,
		prices: prices,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (v *Venue) Name() string { return v.cfg.Name }

// Quote prices req.Amount of base at the venue's spread-adjusted price.
func (v *Venue) Quote(ctx context.Context, req models.QuoteRequest) (*models.Quote, error) {
	if v.cfg.LatencyMs > 0 {
		d := time.Duration(v.rng.Intn(v.cfg.LatencyMs+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}

	symbol := req.BaseAsset + req.QuoteAsset
	mid, ok := v.prices.Last(symbol)
	if !ok || mid <= 0 {
		return nil, fmt.Errorf("%s: no price for %s", v.cfg.Name, symbol)
	}

	// buy pays the ask, sell hits the bid
	half := decimal.NewFromFloat(v.cfg.SpreadBps).Div(decimal.NewFromInt(10000))
	price := decimal.NewFromFloat(mid)
	if req.Side == models.OrderSideBuy {
		price = price.Mul(decimal.NewFromInt(1).Add(half))
	} else {
		price = price.Mul(decimal.NewFromInt(1).Sub(half))
	}

	var out decimal.Decimal
	if req.Side == models.OrderSideBuy {
		// spending quote, receiving base
		out = req.Amount.Div(price)
	} else {
		out = req.Amount.Mul(price)
	}

	return &models.Quote{
		Venue:     v.cfg.Name,
		Price:     price,
		OutAmount: out,
		FeeBps:    decimal.NewFromFloat(v.cfg.FeeBps),
		Depth:     decimal.NewFromFloat(v.cfg.Depth),
		Timestamp: time.Now(),
	}, nil
}

var _ drepo.QuoteProvider = (*Venue)(nil)

// VenuesFromConfig builds all configured providers.
func VenuesFromConfig(cfgs []config.VenueConfig, prices PriceSource) []drepo.QuoteProvider {
	out := make([]drepo.QuoteProvider, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, NewVenue(c, prices))
	}
	return out
}
