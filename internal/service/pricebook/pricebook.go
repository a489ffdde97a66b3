package pricebook

import (
	"sort"
	"sync"

	"CypherFeed/internal/domain/models"
)

// Book holds the latest tick per symbol. It is fed by the collector
// and read by quoting, trading, and the tickers endpoint.
type Book struct {
	mu   sync.RWMutex
	last map[string]models.Ticker
}

func New() *Book {
	return &Book{last: make(map[string]models.Ticker)}
}

// Set records the latest tick for its symbol.
func (b *Book) Set(t *models.Ticker) {
	if t == nil || t.Symbol == "" {
		return
	}
	b.mu.Lock()
	cur, ok := b.last[t.Symbol]
	if !ok || t.Timestamp >= cur.Timestamp {
		b.last[t.Symbol] = *t
	}
	b.mu.Unlock()
}

// Get returns the latest tick for symbol.
func (b *Book) Get(symbol string) (models.Ticker, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.last[symbol]
	return t, ok
}

// Last returns the latest price for symbol.
func (b *Book) Last(symbol string) (float64, bool) {
	t, ok := b.Get(symbol)
	return t.Price, ok
}

// Snapshot returns all latest ticks sorted by symbol.
func (b *Book) Snapshot() []models.Ticker {
	b.mu.RLock()
	out := make([]models.Ticker, 0, len(b.last))
	for _, t := range b.last {
		out = append(out, t)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
