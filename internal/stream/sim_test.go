package stream

import (
	"context"
	"testing"
	"time"

	"CypherFeed/pkg/config"
)

func TestSimEmitsTicks(t *testing.T) {
	s := NewSim(config.SimConfig{
		Symbols:    []string{"BTCUSDT", "ETHUSDT"},
		StartPrice: 50000,
		Volatility: 0.01,
		Interval:   10 * time.Millisecond,
	})
	if s.IsConnected() {
		t.Fatal("connected before Connect")
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.IsConnected() {
		t.Fatal("not connected after Connect")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks, _ := s.Read(ctx)

	seen := map[string]int{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case tick := <-ticks:
			if tick.Price <= 0 {
				t.Fatalf("non-positive price %v", tick.Price)
			}
			if tick.Source != "sim" {
				t.Fatalf("source = %q", tick.Source)
			}
			seen[tick.Symbol]++
		case <-deadline:
			t.Fatalf("timed out waiting for ticks, saw %v", seen)
		}
	}
}

func TestSimCloseStopsStream(t *testing.T) {
	s := NewSim(config.SimConfig{
		Symbols:  []string{"BTCUSDT"},
		Interval: 5 * time.Millisecond,
	})
	_ = s.Connect(context.Background())
	ticks, _ := s.Read(context.Background())

	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("no tick before close")
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ticks:
			if !ok {
				return // channel closed after Close
			}
		case <-deadline:
			t.Fatal("stream did not stop after Close")
		}
	}
}

func TestSimDefaults(t *testing.T) {
	s := NewSim(config.SimConfig{Symbols: []string{"X"}})
	if s.cfg.StartPrice != 100 {
		t.Fatalf("default start price = %v", s.cfg.StartPrice)
	}
	if s.cfg.Interval != time.Second {
		t.Fatalf("default interval = %v", s.cfg.Interval)
	}
}
