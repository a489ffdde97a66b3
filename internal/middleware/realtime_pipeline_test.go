package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"CypherFeed/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, string) {}
func (nopMetrics) RecordError(string)               {}
func (nopMetrics) RecordLastPrice(string, float64)  {}
func (nopMetrics) RecordLatency(string, float64)    {}
func (nopMetrics) RecordConnState(string, string)   {}
func (nopMetrics) RecordPoolDepth(int)              {}
func (nopMetrics) RecordTask(string, string)        {}

type fakeProc struct {
	mu   sync.Mutex
	got  []*models.Ticker
	fail bool
}

func (f *fakeProc) Process(ctx context.Context, t *models.Ticker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("downstream down")
	}
	f.got = append(f.got, t)
	return nil
}

func (f *fakeProc) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func tick(sym string, price float64) *models.Ticker {
	return &models.Ticker{Symbol: sym, Timestamp: time.Now().Unix(), Price: price, Volume: 1}
}

func TestPipelineForwardsValidTick(t *testing.T) {
	proc := &fakeProc{}
	p := NewRealtimePipeline(proc, nopMetrics{})
	if err := p.Process(context.Background(), tick("BTCUSDT", 100)); err != nil {
		t.Fatal(err)
	}
	if proc.count() != 1 {
		t.Fatalf("forwarded %d ticks", proc.count())
	}
}

func TestPipelineRejectsInvalid(t *testing.T) {
	proc := &fakeProc{}
	p := NewRealtimePipeline(proc, nopMetrics{})
	cases := []*models.Ticker{
		nil,
		{Symbol: "", Timestamp: 1, Price: 1},
		{Symbol: "BTCUSDT", Timestamp: 0, Price: 1},
		{Symbol: "BTCUSDT", Timestamp: 1, Price: -1},
	}
	for i, c := range cases {
		if err := p.Process(context.Background(), c); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("invalid ticks forwarded: %d", proc.count())
	}
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	proc := &fakeProc{}
	p := NewRealtimePipeline(proc, nopMetrics{}, WithMaxRPS(1))
	// first passes, immediate second is throttled (dropped, no error)
	if err := p.Process(context.Background(), tick("BTCUSDT", 100)); err != nil {
		t.Fatal(err)
	}
	if err := p.Process(context.Background(), tick("BTCUSDT", 101)); err != nil {
		t.Fatal(err)
	}
	if proc.count() != 1 {
		t.Fatalf("expected 1 forwarded, got %d", proc.count())
	}
	// a different symbol is not affected
	if err := p.Process(context.Background(), tick("ETHUSDT", 10)); err != nil {
		t.Fatal(err)
	}
	if proc.count() != 2 {
		t.Fatalf("expected 2 forwarded, got %d", proc.count())
	}
}

func TestPipelineBuffersOnDownstreamError(t *testing.T) {
	proc := &fakeProc{fail: true}
	p := NewRealtimePipeline(proc, nopMetrics{}, WithBufferSize(4))
	err := p.Process(context.Background(), tick("BTCUSDT", 100))
	if err == nil {
		t.Fatal("expected downstream error")
	}

	// recover downstream and flush the buffer
	proc.mu.Lock()
	proc.fail = false
	proc.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for proc.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("buffered tick never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPipelineTransform(t *testing.T) {
	proc := &fakeProc{}
	p := NewRealtimePipeline(proc, nopMetrics{}, WithTransform(func(tk *models.Ticker) *models.Ticker {
		tk.Source = "normalized"
		return tk
	}))
	if err := p.Process(context.Background(), tick("BTCUSDT", 100)); err != nil {
		t.Fatal(err)
	}
	if proc.got[0].Source != "normalized" {
		t.Fatalf("transform not applied: %q", proc.got[0].Source)
	}
}
