package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CypherFeed/internal/domain/models"
	drepo "CypherFeed/internal/domain/repository"
)

// PriceSource supplies the mark used to simulate fills.
type PriceSource interface {
	Last(symbol string) (float64, bool)
}

// PaperBroker simulates market-order execution at the latest observed
// price plus configurable slippage. Orders never touch an exchange.
type PaperBroker struct {
	prices      PriceSource
	slippageBps float64
}

func NewPaperBroker(prices PriceSource, slippageBps float64) *PaperBroker {
	return &PaperBroker{prices: prices, slippageBps: slippageBps}
}

func (p *PaperBroker) Name() string { return "paper" }

// LastPrice returns the current mark for a symbol.
func (p *PaperBroker) LastPrice(ctx context.Context, symbol string) (float64, error) {
	px, ok := p.prices.Last(symbol)
	if !ok || px <= 0 {
		return 0, fmt.Errorf("paper: no price for %s", symbol)
	}
	return px, nil
}

// PlaceMarketQuote fills a market order sized in quote units. Buys pay
// slippage above the mark, sells below.
func (p *PaperBroker) PlaceMarketQuote(ctx context.Context, symbol string, side models.OrderSide, quoteAmount float64) (*models.Order, error) {
	if quoteAmount <= 0 {
		return nil, fmt.Errorf("paper: quote amount must be > 0")
	}
	mark, err := p.LastPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	slip := mark * p.slippageBps / 10000
	price := mark
	switch side {
	case models.OrderSideBuy:
		price += slip
	case models.OrderSideSell:
		price -= slip
	default:
		return nil, fmt.Errorf("paper: unknown side %q", side)
	}
	if price <= 0 {
		return nil, fmt.Errorf("paper: slippage produced non-positive price")
	}

	return &models.Order{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Side:       side,
		Price:      price,
		BaseSize:   quoteAmount / price,
		QuoteSpent: quoteAmount,
		CreateTime: time.Now().UTC(),
	}, nil
}

var _ drepo.Broker = (*PaperBroker)(nil)
