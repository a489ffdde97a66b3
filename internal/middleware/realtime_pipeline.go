package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CypherFeed/internal/domain/models"
	domrepo "CypherFeed/internal/domain/repository"
)

// Proc is the downstream side of the pipeline.
type Proc interface {
	Process(ctx context.Context, t *models.Ticker) error
}

// RealtimePipeline sits between the exchange stream and the tick
// processor. It validates each tick, throttles per symbol, applies an
// optional transform, and buffers ticks the downstream rejects so a
// flush loop can retry them.
type RealtimePipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	transform func(*models.Ticker) *models.Ticker

	minGap time.Duration
	buf    chan *models.Ticker

	mu       sync.Mutex
	lastSeen map[string]time.Time
	started  bool
	stopCh   chan struct{}
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps accepted ticks per second for each symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.minGap = time.Second / time.Duration(n)
		}
	}
}

// WithBufferSize sets how many ticks are held while downstream is down.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.buf = make(chan *models.Ticker, n)
		}
	}
}

// WithTransform rewrites each tick before it is forwarded.
func WithTransform(fn func(*models.Ticker) *models.Ticker) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		minGap:   time.Second / 20,
		buf:      make(chan *models.Ticker, 1000),
		lastSeen: make(map[string]time.Time),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one tick through the pipeline. Throttled ticks are
// dropped without error; ticks the downstream rejects are buffered and
// the downstream error is returned.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.Ticker) error {
	start := time.Now()

	if err := validateTicker(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := validateTicker(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if p.throttled(t.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		p.metrics.RecordError("pipeline_throttle_" + t.Symbol)
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.stash(t)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// Start launches the flush loop that retries buffered ticks.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	go p.flushLoop(ctx)
}

// Stop terminates the flush loop. Buffered ticks are abandoned.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

func (p *RealtimePipeline) flushLoop(ctx context.Context) {
	const minDelay, maxDelay = 50 * time.Millisecond, 2 * time.Second
	delay := minDelay
	for {
		select {
		case <-p.stopCh:
			return
		case t := <-p.buf:
			if t == nil {
				continue
			}
			if err := p.proc.Process(ctx, t); err != nil {
				p.metrics.RecordError("pipeline_flush")
				if delay < maxDelay {
					delay *= 2
				}
				time.Sleep(delay)
				p.stash(t)
				continue
			}
			delay = minDelay
		}
	}
}

// stash buffers a tick without blocking, dropping it when full.
func (p *RealtimePipeline) stash(t *models.Ticker) {
	select {
	case p.buf <- t:
		p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.buf)))
	default:
		p.metrics.RecordError("pipeline_buffer_drop")
	}
}

func (p *RealtimePipeline) throttled(symbol string, now time.Time) bool {
	if p.minGap <= 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastSeen[symbol]; ok && now.Sub(last) < p.minGap {
		return true
	}
	p.lastSeen[symbol] = now
	return false
}

func validateTicker(t *models.Ticker) error {
	switch {
	case t == nil:
		return fmt.Errorf("ticker nil")
	case t.Symbol == "":
		return fmt.Errorf("symbol empty")
	case t.Timestamp <= 0:
		return fmt.Errorf("timestamp invalid")
	case t.Price < 0 || t.Volume < 0:
		return fmt.Errorf("negative price/volume")
	}
	return nil
}
