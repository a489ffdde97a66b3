package portfolio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"CypherFeed/internal/domain/models"
)

// holding is the exact-arithmetic state behind a models.Position.
type holding struct {
	size     decimal.Decimal
	avgCost  decimal.Decimal
	realized decimal.Decimal
	lastPx   decimal.Decimal
}

func (h *holding) marketValue() decimal.Decimal {
	return h.size.Mul(h.lastPx)
}

func (h *holding) unrealized() decimal.Decimal {
	return h.lastPx.Sub(h.avgCost).Mul(h.size)
}

func (h *holding) position(symbol string) models.Position {
	return models.Position{
		Symbol:      symbol,
		BaseSize:    h.size.InexactFloat64(),
		AvgCost:     h.avgCost.InexactFloat64(),
		LastPrice:   h.lastPx.InexactFloat64(),
		MarketValue: h.marketValue().InexactFloat64(),
		Unrealized:  h.unrealized().InexactFloat64(),
		Realized:    h.realized.InexactFloat64(),
	}
}

// Book tracks positions with average-cost basis and a quote cash
// balance. All arithmetic is decimal so repeated fills do not drift;
// floats appear only on the models boundary. All methods are safe for
// concurrent use.
type Book struct {
	mu       sync.RWMutex
	cash     decimal.Decimal
	holdings map[string]*holding
}

// NewBook starts a book with an initial quote cash balance.
func NewBook(startingCash float64) *Book {
	return &Book{
		cash:     decimal.NewFromFloat(startingCash),
		holdings: make(map[string]*holding),
	}
}

// ApplyFill updates cash and the symbol position for an executed order.
// Buys raise the average cost; sells realize P&L against it. A sell
// larger than the held size is clamped to flatten the position.
func (b *Book) ApplyFill(o *models.Order) error {
	if o == nil {
		return fmt.Errorf("portfolio: nil order")
	}
	if o.Price <= 0 || o.BaseSize <= 0 {
		return fmt.Errorf("portfolio: bad fill price=%v size=%v", o.Price, o.BaseSize)
	}
	price := decimal.NewFromFloat(o.Price)
	fill := decimal.NewFromFloat(o.BaseSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.holdings[o.Symbol]
	if !ok {
		h = &holding{}
		b.holdings[o.Symbol] = h
	}

	switch o.Side {
	case models.OrderSideBuy:
		cost := price.Mul(fill)
		if cost.GreaterThan(b.cash) {
			return fmt.Errorf("portfolio: insufficient cash %s for cost %s", b.cash, cost)
		}
		total := h.avgCost.Mul(h.size).Add(cost)
		h.size = h.size.Add(fill)
		h.avgCost = total.Div(h.size)
		b.cash = b.cash.Sub(cost)
	case models.OrderSideSell:
		size := fill
		if size.GreaterThan(h.size) {
			size = h.size
		}
		if !size.IsPositive() {
			return fmt.Errorf("portfolio: no %s position to sell", o.Symbol)
		}
		h.realized = h.realized.Add(price.Sub(h.avgCost).Mul(size))
		h.size = h.size.Sub(size)
		b.cash = b.cash.Add(price.Mul(size))
		if h.size.IsZero() {
			h.avgCost = decimal.Zero
		}
	default:
		return fmt.Errorf("portfolio: unknown side %q", o.Side)
	}

	h.lastPx = price
	return nil
}

// MarkToMarket refreshes unrealized P&L from the latest prices.
func (b *Book) MarkToMarket(prices map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sym, h := range b.holdings {
		p, ok := prices[sym]
		if !ok || p <= 0 {
			continue
		}
		h.lastPx = decimal.NewFromFloat(p)
	}
}

// Cash returns the current quote balance.
func (b *Book) Cash() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cash.InexactFloat64()
}

// Position returns a copy of the symbol position.
func (b *Book) Position(symbol string) (models.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.holdings[symbol]
	if !ok {
		return models.Position{}, false
	}
	return h.position(symbol), true
}

// Snapshot returns all open positions plus cash and equity. Flat
// positions with realized history are kept so P&L is not lost.
func (b *Book) Snapshot() models.PortfolioSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := models.PortfolioSnapshot{
		CashQuote: b.cash.InexactFloat64(),
		Timestamp: time.Now(),
	}
	equity := b.cash
	realized := decimal.Zero
	unrealized := decimal.Zero
	for sym, h := range b.holdings {
		if h.size.IsZero() && h.realized.IsZero() {
			continue
		}
		snap.Positions = append(snap.Positions, h.position(sym))
		equity = equity.Add(h.marketValue())
		realized = realized.Add(h.realized)
		unrealized = unrealized.Add(h.unrealized())
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].Symbol < snap.Positions[j].Symbol
	})
	snap.Equity = equity.InexactFloat64()
	snap.Realized = realized.InexactFloat64()
	snap.Unrealized = unrealized.InexactFloat64()
	return snap
}
