package cache

import (
	"context"
	"testing"
	"time"
)

type payload struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestMemoryGetTypedDest(t *testing.T) {
	mc := NewMemoryCache()
	t.Cleanup(func() { mc.Close() })
	ctx := context.Background()

	want := payload{Symbol: "BTCUSDT", Price: 64000}
	if err := mc.Set(ctx, "k", want, time.Minute); err != nil {
		t.Fatal(err)
	}

	var got payload
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestMemoryGetTypedDestFromMap(t *testing.T) {
	// the shape a Redis backfill leaves behind
	mc := NewMemoryCache()
	t.Cleanup(func() { mc.Close() })
	ctx := context.Background()

	stored := map[string]interface{}{"symbol": "ETHUSDT", "price": 3100.5}
	if err := mc.Set(ctx, "k", stored, time.Minute); err != nil {
		t.Fatal(err)
	}

	var got payload
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Symbol != "ETHUSDT" || got.Price != 3100.5 {
		t.Errorf("got %+v", got)
	}
}

func TestMemoryGetMiss(t *testing.T) {
	mc := NewMemoryCache()
	t.Cleanup(func() { mc.Close() })

	var got payload
	if err := mc.Get(context.Background(), "missing", &got); err != ErrCacheMiss {
		t.Errorf("err = %v, want ErrCacheMiss", err)
	}
}
