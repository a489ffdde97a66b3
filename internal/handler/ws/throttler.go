package ws

import (
	"context"
	"sync"
	"time"

	"CypherFeed/internal/domain/models"
)

// Throttler coalesces per-symbol price updates and broadcasts the
// latest ones at a fixed cadence, so a busy feed cannot flood clients.
type Throttler struct {
	hub      *Hub
	interval time.Duration

	mu   sync.Mutex
	last map[string]*models.Ticker
}

func NewThrottler(hub *Hub, interval time.Duration) *Throttler {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Throttler{
		hub:      hub,
		interval: interval,
		last:     make(map[string]*models.Ticker),
	}
}

// Update records the newest tick for its symbol.
func (t *Throttler) Update(tick *models.Ticker) {
	if tick == nil {
		return
	}
	t.mu.Lock()
	t.last[tick.Symbol] = tick
	t.mu.Unlock()
}

// Start broadcasts pending updates until ctx is cancelled.
func (t *Throttler) Start(ctx context.Context) {
	go func() {
		tk := time.NewTicker(t.interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				t.flush()
			}
		}
	}()
}

func (t *Throttler) flush() {
	t.mu.Lock()
	pending := t.last
	t.last = make(map[string]*models.Ticker)
	t.mu.Unlock()

	for _, tick := range pending {
		t.hub.BroadcastTicker(tick)
	}
}
