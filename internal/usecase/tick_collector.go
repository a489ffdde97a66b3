package usecase

import (
	"context"

	"CypherFeed/internal/domain/models"
	drepo "CypherFeed/internal/domain/repository"
	mid "CypherFeed/internal/middleware"
	"CypherFeed/pkg/logger"
)

// Tap receives every accepted tick alongside the backend path. Used to
// feed the price book, the trading engine, and the dashboard hub.
type Tap func(*models.Ticker)

// TickCollector reads from one market stream and pushes ticks through
// the realtime pipeline into the processor.
type TickCollector struct {
	stream  drepo.MarketStream
	proc    *TickProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
	l       *logger.Logger
	taps    []Tap
}

// NewTickCollector creates a new TickCollector instance.
func NewTickCollector(stream drepo.MarketStream, proc *TickProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline, l *logger.Logger) *TickCollector {
	return &TickCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe, l: l}
}

// AddTap registers a tick observer. Call before Start.
func (c *TickCollector) AddTap(t Tap) { c.taps = append(c.taps, t) }

// IsConnected returns true if the market stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	tkCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tkCh, errCh)
	return nil
}

func (c *TickCollector) consume(ctx context.Context, tkCh <-chan *models.Ticker, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				// reconnects happen inside the stream; this is fatal
				c.metrics.RecordError("stream")
				c.l.Error("market stream failed", logger.Error(err))
			}
		case t, ok := <-tkCh:
			if !ok {
				return
			}
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
			for _, tap := range c.taps {
				tap(t)
			}
			c.metrics.RecordLastPrice(t.Symbol, t.Price)
		}
	}
}

func (c *TickCollector) Stop() error { return c.stream.Close() }

// Processor returns the underlying TickProcessor for lifecycle management.
func (c *TickCollector) Processor() *TickProcessor { return c.proc }

// Shutdown stops pipeline and closes stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
