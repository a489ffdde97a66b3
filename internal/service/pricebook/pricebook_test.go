package pricebook

import (
	"testing"

	"CypherFeed/internal/domain/models"
)

func TestBookSetGet(t *testing.T) {
	b := New()
	if _, ok := b.Last("BTCUSDT"); ok {
		t.Fatal("empty book returned a price")
	}
	b.Set(&models.Ticker{Symbol: "BTCUSDT", Timestamp: 10, Price: 64000})
	p, ok := b.Last("BTCUSDT")
	if !ok || p != 64000 {
		t.Fatalf("got %v %v", p, ok)
	}
}

func TestBookIgnoresStale(t *testing.T) {
	b := New()
	b.Set(&models.Ticker{Symbol: "BTCUSDT", Timestamp: 20, Price: 64100})
	b.Set(&models.Ticker{Symbol: "BTCUSDT", Timestamp: 10, Price: 63000})
	p, _ := b.Last("BTCUSDT")
	if p != 64100 {
		t.Fatalf("stale tick overwrote newer: %v", p)
	}
}

func TestBookSnapshotSorted(t *testing.T) {
	b := New()
	b.Set(&models.Ticker{Symbol: "ETHUSDT", Timestamp: 1, Price: 3000})
	b.Set(&models.Ticker{Symbol: "BTCUSDT", Timestamp: 1, Price: 64000})
	snap := b.Snapshot()
	if len(snap) != 2 || snap[0].Symbol != "BTCUSDT" || snap[1].Symbol != "ETHUSDT" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestBookNilAndEmpty(t *testing.T) {
	b := New()
	b.Set(nil)
	b.Set(&models.Ticker{Symbol: ""})
	if len(b.Snapshot()) != 0 {
		t.Fatal("bad ticks stored")
	}
}
