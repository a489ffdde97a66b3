package stream

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"CypherFeed/internal/domain/models"
	drepo "CypherFeed/internal/domain/repository"
	"CypherFeed/pkg/config"
)

// Sim is a MarketStream that emits a geometric random walk per symbol.
// It stands in for a live venue in development and in the paper
// trading loop.
type Sim struct {
	cfg       config.SimConfig
	rng       *rand.Rand
	connected atomic.Bool

	mu     sync.Mutex
	prices map[string]float64
}

// NewSim creates a simulated MarketStream.
func NewSim(cfg config.SimConfig) *Sim {
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	prices := make(map[string]float64, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		prices[s] = cfg.StartPrice
	}
	return &Sim{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		prices: prices,
	}
}

// Connect marks the stream live. There is no socket to dial.
func (s *Sim) Connect(ctx context.Context) error {
	s.connected.Store(true)
	return nil
}

// Subscribe is a no-op; symbols come from configuration.
func (s *Sim) Subscribe(ctx context.Context) error { return nil }

// step advances one symbol's price by a lognormal increment.
func (s *Sim) step(symbol string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	dt := s.cfg.Interval.Seconds()
	z := s.rng.NormFloat64()
	p := s.prices[symbol]
	p *= math.Exp(s.cfg.Drift*dt + s.cfg.Volatility*math.Sqrt(dt)*z)
	s.prices[symbol] = p
	return p
}

// Read streams Ticker events until ctx is cancelled or Close is called.
func (s *Sim) Read(ctx context.Context) (<-chan *models.Ticker, <-chan error) {
	ticks := make(chan *models.Ticker, 1024)
	errs := make(chan error, 1)

	go func() {
		defer close(ticks)
		defer close(errs)
		t := time.NewTicker(s.cfg.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if !s.connected.Load() {
					return
				}
				for _, sym := range s.cfg.Symbols {
					tick := &models.Ticker{
						Symbol:    sym,
						Timestamp: now.Unix(),
						Price:     s.step(sym),
						Volume:    s.rng.Float64() * 10,
						Source:    "sim",
					}
					select {
					case ticks <- tick:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return ticks, errs
}

// IsConnected reports whether Connect has been called.
func (s *Sim) IsConnected() bool { return s.connected.Load() }

// Close stops the read loop on its next tick.
func (s *Sim) Close() error {
	s.connected.Store(false)
	return nil
}

var _ drepo.MarketStream = (*Sim)(nil)
