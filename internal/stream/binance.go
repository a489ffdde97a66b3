package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"CypherFeed/internal/domain/models"
	drepo "CypherFeed/internal/domain/repository"
	"CypherFeed/pkg/config"
	"CypherFeed/pkg/ws"
)

// Binance implements a MarketStream backed by the Binance combined
// aggTrade stream, with reconnect handled by the ws connection.
type Binance struct {
	mgr     *ws.Manager
	cfg     config.BinanceConfig
	rec     config.ReconnectConfig
	symbols []string

	mu   sync.Mutex
	conn *ws.Conn
}

// NewBinance creates a Binance MarketStream registered on the shared manager.
func NewBinance(mgr *ws.Manager, cfg config.BinanceConfig, rec config.ReconnectConfig) *Binance {
	return &Binance{mgr: mgr, cfg: cfg, rec: rec, symbols: cfg.Symbols}
}

// streamName maps BTCUSDT to btcusdt@aggTrade.
func streamName(symbol string) string {
	return strings.ToLower(symbol) + "@aggTrade"
}

// Connect registers the connection and starts its dial loop.
func (b *Binance) Connect(ctx context.Context) error {
	streams := make([]string, 0, len(b.symbols))
	for _, s := range b.symbols {
		streams = append(streams, streamName(s))
	}
	u := strings.TrimRight(b.cfg.StreamURL, "/") + "/stream?streams=" + strings.Join(streams, "/")

	conn, err := b.mgr.Add(ws.ConnConfig{
		Name: "binance",
		URL:  u,
		Subscribes: []any{
			map[string]any{"method": "SUBSCRIBE", "params": streams, "id": 1},
		},
		PingInterval: b.cfg.PingInterval,
		PongWait:     b.cfg.PongWait,
		Reconnect: ws.ReconnectPolicy{
			Policy:      b.rec.Policy,
			Interval:    b.rec.Interval,
			MaxInterval: b.rec.MaxInterval,
			MaxAttempts: b.rec.MaxAttempts,
		},
	})
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	return conn.Start(ctx)
}

// Subscribe is satisfied by the combined-stream URL; the SUBSCRIBE frame
// is replayed by the connection after every dial.
func (b *Binance) Subscribe(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("binance not connected")
	}
	return nil
}

type aggTrade struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Qty    string `json:"q"`
	TimeMs int64  `json:"T"`
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// parseAggTrade decodes either a combined-stream envelope or a bare
// aggTrade frame. Non-trade frames return false.
func parseAggTrade(data []byte) (*models.Ticker, bool) {
	var f combinedFrame
	raw := json.RawMessage(data)
	if err := json.Unmarshal(data, &f); err == nil && len(f.Data) > 0 {
		raw = f.Data
	}
	var t aggTrade
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false
	}
	if t.Event != "aggTrade" || t.Symbol == "" {
		return nil, false
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil || price <= 0 {
		return nil, false
	}
	qty, _ := strconv.ParseFloat(t.Qty, 64)
	return &models.Ticker{
		Symbol:    t.Symbol,
		Timestamp: t.TimeMs / 1000,
		Price:     price,
		Volume:    qty,
		Source:    "binance",
	}, true
}

// Read streams Ticker events and errors.
func (b *Binance) Read(ctx context.Context) (<-chan *models.Ticker, <-chan error) {
	ticks := make(chan *models.Ticker, 1024)
	errs := make(chan error, 1)

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		errs <- fmt.Errorf("binance conn nil")
		close(ticks)
		close(errs)
		return ticks, errs
	}

	// The subscription callback fires from the connection's dispatch
	// goroutine for as long as the socket lives, so it must never touch
	// a channel that gets closed. It feeds an inner channel that stays
	// open forever; the forwarder below is the sole owner of ticks and
	// errs and closes them once it stops draining.
	in := make(chan *models.Ticker, 1024)
	conn.Subscribe("*", func(_ string, data []byte) {
		tick, ok := parseAggTrade(data)
		if !ok {
			return
		}
		select {
		case in <- tick:
		default:
			// drop on backpressure
		}
	})

	go func() {
		defer close(ticks)
		defer close(errs)
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-in:
				select {
				case ticks <- tick:
				default:
					// drop on backpressure
				}
			case <-t.C:
				if conn.State() == ws.StateClosed {
					if err := conn.LastErr(); err != nil {
						errs <- fmt.Errorf("binance stream: %w", err)
					}
					return
				}
			}
		}
	}()

	return ticks, errs
}

// IsConnected reports whether the underlying socket is live.
func (b *Binance) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.State() == ws.StateConnected
}

// Close tears the connection down.
func (b *Binance) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

var _ drepo.MarketStream = (*Binance)(nil)
