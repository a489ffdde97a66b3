package portfolio

import (
	"math"
	"testing"

	"CypherFeed/internal/domain/models"
)

func buy(sym string, price, size float64) *models.Order {
	return &models.Order{Symbol: sym, Side: models.OrderSideBuy, Price: price, BaseSize: size}
}

func sell(sym string, price, size float64) *models.Order {
	return &models.Order{Symbol: sym, Side: models.OrderSideSell, Price: price, BaseSize: size}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestApplyFillAverageCost(t *testing.T) {
	b := NewBook(100_000)

	if err := b.ApplyFill(buy("BTCUSDT", 60000, 0.5)); err != nil {
		t.Fatal(err)
	}
	if err := b.ApplyFill(buy("BTCUSDT", 64000, 0.5)); err != nil {
		t.Fatal(err)
	}

	pos, ok := b.Position("BTCUSDT")
	if !ok {
		t.Fatal("position missing")
	}
	if !approx(pos.BaseSize, 1.0) || !approx(pos.AvgCost, 62000) {
		t.Fatalf("pos = %+v", pos)
	}
	if !approx(b.Cash(), 100_000-62_000) {
		t.Fatalf("cash = %v", b.Cash())
	}
}

func TestSellRealizesPnL(t *testing.T) {
	b := NewBook(100_000)
	_ = b.ApplyFill(buy("BTCUSDT", 60000, 1))
	if err := b.ApplyFill(sell("BTCUSDT", 66000, 0.5)); err != nil {
		t.Fatal(err)
	}

	pos, _ := b.Position("BTCUSDT")
	if !approx(pos.Realized, 3000) {
		t.Fatalf("realized = %v", pos.Realized)
	}
	if !approx(pos.BaseSize, 0.5) || !approx(pos.AvgCost, 60000) {
		t.Fatalf("pos = %+v", pos)
	}
	if !approx(b.Cash(), 100_000-60_000+33_000) {
		t.Fatalf("cash = %v", b.Cash())
	}
}

func TestOversellClampsToFlat(t *testing.T) {
	b := NewBook(100_000)
	_ = b.ApplyFill(buy("BTCUSDT", 60000, 0.5))
	if err := b.ApplyFill(sell("BTCUSDT", 62000, 2)); err != nil {
		t.Fatal(err)
	}

	pos, _ := b.Position("BTCUSDT")
	if pos.BaseSize != 0 {
		t.Fatalf("size = %v, want flat", pos.BaseSize)
	}
	if pos.AvgCost != 0 {
		t.Fatalf("avg cost not reset: %v", pos.AvgCost)
	}
	// only the held 0.5 realizes
	if !approx(pos.Realized, 1000) {
		t.Fatalf("realized = %v", pos.Realized)
	}
}

func TestApplyFillNoFloatDrift(t *testing.T) {
	b := NewBook(100_000)
	for i := 0; i < 3; i++ {
		if err := b.ApplyFill(buy("BTCUSDT", 64000, 0.1)); err != nil {
			t.Fatal(err)
		}
	}

	// 0.1+0.1+0.1 in float64 is 0.30000000000000004; the book must
	// report exactly 0.3
	pos, _ := b.Position("BTCUSDT")
	if pos.BaseSize != 0.3 {
		t.Errorf("size = %v, want exactly 0.3", pos.BaseSize)
	}
	if pos.AvgCost != 64000 {
		t.Errorf("avg cost = %v, want exactly 64000", pos.AvgCost)
	}
	if b.Cash() != 100_000-3*6400 {
		t.Errorf("cash = %v, want exactly %v", b.Cash(), 100_000-3*6400)
	}

	if err := b.ApplyFill(sell("BTCUSDT", 64000, 0.3)); err != nil {
		t.Fatal(err)
	}
	pos, _ = b.Position("BTCUSDT")
	if pos.BaseSize != 0 || pos.Realized != 0 {
		t.Errorf("flat sell at cost left size=%v realized=%v", pos.BaseSize, pos.Realized)
	}
	if b.Cash() != 100_000 {
		t.Errorf("round trip cash = %v, want exactly 100000", b.Cash())
	}
}

func TestSellWithNoPosition(t *testing.T) {
	b := NewBook(100_000)
	if err := b.ApplyFill(sell("BTCUSDT", 60000, 1)); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuyInsufficientCash(t *testing.T) {
	b := NewBook(1000)
	if err := b.ApplyFill(buy("BTCUSDT", 60000, 1)); err == nil {
		t.Fatal("expected error")
	}
	if b.Cash() != 1000 {
		t.Fatalf("cash mutated: %v", b.Cash())
	}
}

func TestApplyFillRejectsBadOrders(t *testing.T) {
	b := NewBook(1000)
	if err := b.ApplyFill(nil); err == nil {
		t.Error("nil order accepted")
	}
	if err := b.ApplyFill(buy("BTCUSDT", 0, 1)); err == nil {
		t.Error("zero price accepted")
	}
	if err := b.ApplyFill(&models.Order{Symbol: "X", Side: "short", Price: 1, BaseSize: 1}); err == nil {
		t.Error("unknown side accepted")
	}
}

func TestMarkToMarketAndSnapshot(t *testing.T) {
	b := NewBook(100_000)
	_ = b.ApplyFill(buy("BTCUSDT", 60000, 1))
	_ = b.ApplyFill(buy("ETHUSDT", 3000, 10))

	b.MarkToMarket(map[string]float64{"BTCUSDT": 65000, "ETHUSDT": 2900})

	snap := b.Snapshot()
	if len(snap.Positions) != 2 {
		t.Fatalf("positions = %d", len(snap.Positions))
	}
	if snap.Positions[0].Symbol != "BTCUSDT" {
		t.Fatalf("not sorted: %+v", snap.Positions)
	}
	if !approx(snap.Unrealized, 5000-1000) {
		t.Fatalf("unrealized = %v", snap.Unrealized)
	}
	wantEquity := snap.CashQuote + 65000 + 29000
	if !approx(snap.Equity, wantEquity) {
		t.Fatalf("equity = %v, want %v", snap.Equity, wantEquity)
	}
}

func TestSnapshotKeepsRealizedAfterFlat(t *testing.T) {
	b := NewBook(100_000)
	_ = b.ApplyFill(buy("BTCUSDT", 60000, 1))
	_ = b.ApplyFill(sell("BTCUSDT", 61000, 1))

	snap := b.Snapshot()
	if len(snap.Positions) != 1 {
		t.Fatalf("flat position with realized pnl dropped: %+v", snap)
	}
	if !approx(snap.Realized, 1000) {
		t.Fatalf("realized = %v", snap.Realized)
	}
}
