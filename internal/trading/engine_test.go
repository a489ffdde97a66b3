package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"CypherFeed/internal/analysis"
	"CypherFeed/internal/domain/models"
	"CypherFeed/internal/portfolio"
	"CypherFeed/internal/workerpool"
	"CypherFeed/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, string) {}
func (nopMetrics) RecordError(string)               {}
func (nopMetrics) RecordLastPrice(string, float64)  {}
func (nopMetrics) RecordLatency(string, float64)    {}
func (nopMetrics) RecordConnState(string, string)   {}
func (nopMetrics) RecordPoolDepth(int)              {}
func (nopMetrics) RecordTask(string, string)        {}

type stubPrices struct {
	mu sync.Mutex
	m  map[string]float64
}

func (s *stubPrices) Last(symbol string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[symbol]
	return p, ok
}

func (s *stubPrices) set(symbol string, p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[symbol] = p
}

type capturedExec struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (c *capturedExec) PublishExecution(_ context.Context, o *models.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders = append(c.orders, o)
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func testPool(t *testing.T) *workerpool.Pool {
	t.Helper()
	p := workerpool.New(testLogger(t), nopMetrics{}, workerpool.Config{Workers: 2, QueueSize: 64})
	analysis.RegisterHandlers(p)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	t.Cleanup(func() { cancel(); p.Stop() })
	return p
}

func testEngine(t *testing.T, cfg Config, prices *stubPrices, cash float64) (*Engine, *portfolio.Book, *capturedExec) {
	t.Helper()
	book := portfolio.NewBook(cash)
	broker := NewPaperBroker(prices, 0)
	pub := &capturedExec{}
	e := NewEngine(cfg, testPool(t), broker, book, prices, pub, testLogger(t), nopMetrics{})
	return e, book, pub
}

// feed seeds history so fast/slow SMA sit where the test needs them.
func feed(e *Engine, symbol string, prices []float64) {
	for _, p := range prices {
		e.OnTick(&models.Ticker{Symbol: symbol, Timestamp: time.Now().Unix(), Price: p})
	}
}

func flatSeries(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestPaperBrokerFillsWithSlippage(t *testing.T) {
	prices := &stubPrices{m: map[string]float64{"BTCUSDT": 64000}}
	b := NewPaperBroker(prices, 10) // 10 bps

	buy, err := b.PlaceMarketQuote(context.Background(), "BTCUSDT", models.OrderSideBuy, 6400)
	if err != nil {
		t.Fatal(err)
	}
	if buy.Price != 64000*1.001 {
		t.Errorf("buy price = %v", buy.Price)
	}
	if buy.ID == "" {
		t.Error("missing order id")
	}
	if buy.QuoteSpent != 6400 {
		t.Errorf("quote spent = %v", buy.QuoteSpent)
	}

	sellOrd, err := b.PlaceMarketQuote(context.Background(), "BTCUSDT", models.OrderSideSell, 6400)
	if err != nil {
		t.Fatal(err)
	}
	if sellOrd.Price != 64000*0.999 {
		t.Errorf("sell price = %v", sellOrd.Price)
	}
}

func TestPaperBrokerErrors(t *testing.T) {
	b := NewPaperBroker(&stubPrices{m: map[string]float64{}}, 0)
	if _, err := b.PlaceMarketQuote(context.Background(), "BTCUSDT", models.OrderSideBuy, 100); err == nil {
		t.Error("expected error without price")
	}
	b2 := NewPaperBroker(&stubPrices{m: map[string]float64{"BTCUSDT": 100}}, 0)
	if _, err := b2.PlaceMarketQuote(context.Background(), "BTCUSDT", models.OrderSideBuy, 0); err == nil {
		t.Error("expected error for zero amount")
	}
	if _, err := b2.PlaceMarketQuote(context.Background(), "BTCUSDT", "short", 100); err == nil {
		t.Error("expected error for unknown side")
	}
}

func TestEvaluateWarmup(t *testing.T) {
	prices := &stubPrices{m: map[string]float64{"BTCUSDT": 100}}
	e, _, _ := testEngine(t, Config{Symbols: []string{"BTCUSDT"}, FastPeriod: 2, SlowPeriod: 5}, prices, 10_000)

	stop := make(chan struct{})
	sig := e.evaluate(context.Background(), stop, "BTCUSDT")
	if sig == nil || sig.Action != models.ActionHold || sig.Reason != "warming up" {
		t.Fatalf("sig = %+v", sig)
	}
}

func TestEvaluateBuyOnCrossUp(t *testing.T) {
	prices := &stubPrices{m: map[string]float64{"BTCUSDT": 110}}
	e, _, _ := testEngine(t, Config{Symbols: []string{"BTCUSDT"}, FastPeriod: 2, SlowPeriod: 5, RSIPeriod: 5}, prices, 10_000)
	stop := make(chan struct{})

	// fast below slow first
	feed(e, "BTCUSDT", []float64{110, 110, 110, 110, 100, 95})
	sig := e.evaluate(context.Background(), stop, "BTCUSDT")
	if sig.Action != models.ActionHold {
		t.Fatalf("expected hold, got %+v", sig)
	}

	// rally pushes fast above slow
	feed(e, "BTCUSDT", []float64{105, 112})
	sig = e.evaluate(context.Background(), stop, "BTCUSDT")
	if sig.Action != models.ActionBuy {
		t.Fatalf("expected buy, got %+v", sig)
	}
	if sig.FastSMA <= sig.SlowSMA {
		t.Fatalf("fast %v not above slow %v", sig.FastSMA, sig.SlowSMA)
	}
}

func TestEvaluateSellOnCrossDown(t *testing.T) {
	prices := &stubPrices{m: map[string]float64{"BTCUSDT": 90}}
	e, _, _ := testEngine(t, Config{Symbols: []string{"BTCUSDT"}, FastPeriod: 2, SlowPeriod: 5, RSIPeriod: 5}, prices, 10_000)
	stop := make(chan struct{})

	feed(e, "BTCUSDT", []float64{100, 100, 100, 100, 105, 110})
	sig := e.evaluate(context.Background(), stop, "BTCUSDT")
	if sig.Action == models.ActionSell {
		t.Fatalf("premature sell: %+v", sig)
	}

	feed(e, "BTCUSDT", []float64{95, 88})
	sig = e.evaluate(context.Background(), stop, "BTCUSDT")
	if sig.Action != models.ActionSell {
		t.Fatalf("expected sell, got %+v", sig)
	}
}

func TestExecuteBuyAndPublish(t *testing.T) {
	prices := &stubPrices{m: map[string]float64{"BTCUSDT": 100}}
	e, book, pub := testEngine(t, Config{Symbols: []string{"BTCUSDT"}, OrderNotional: 500}, prices, 10_000)

	e.execute(context.Background(), &models.Signal{Symbol: "BTCUSDT", Action: models.ActionBuy})

	pos, ok := book.Position("BTCUSDT")
	if !ok || pos.BaseSize != 5 {
		t.Fatalf("pos = %+v", pos)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.orders) != 1 || pub.orders[0].Side != models.OrderSideBuy {
		t.Fatalf("published = %+v", pub.orders)
	}
	if e.Status().OrdersTotal != 1 {
		t.Fatalf("orders total = %d", e.Status().OrdersTotal)
	}
}

func TestExecuteRespectsPositionCap(t *testing.T) {
	prices := &stubPrices{m: map[string]float64{"BTCUSDT": 100}}
	e, book, _ := testEngine(t, Config{Symbols: []string{"BTCUSDT"}, OrderNotional: 500, MaxPositionValue: 800}, prices, 10_000)

	e.execute(context.Background(), &models.Signal{Symbol: "BTCUSDT", Action: models.ActionBuy})
	e.execute(context.Background(), &models.Signal{Symbol: "BTCUSDT", Action: models.ActionBuy})

	pos, _ := book.Position("BTCUSDT")
	if pos.BaseSize != 5 {
		t.Fatalf("cap ignored, size = %v", pos.BaseSize)
	}
}

func TestExecuteSellFlattens(t *testing.T) {
	prices := &stubPrices{m: map[string]float64{"BTCUSDT": 100}}
	e, book, _ := testEngine(t, Config{Symbols: []string{"BTCUSDT"}, OrderNotional: 500}, prices, 10_000)

	e.execute(context.Background(), &models.Signal{Symbol: "BTCUSDT", Action: models.ActionBuy})
	e.execute(context.Background(), &models.Signal{Symbol: "BTCUSDT", Action: models.ActionSell})

	pos, _ := book.Position("BTCUSDT")
	if pos.BaseSize != 0 {
		t.Fatalf("sell did not flatten: %+v", pos)
	}
}

func TestTapsSeeSignalsAndFills(t *testing.T) {
	prices := &stubPrices{m: map[string]float64{"BTCUSDT": 112}}
	e, _, _ := testEngine(t, Config{Symbols: []string{"BTCUSDT"}, FastPeriod: 2, SlowPeriod: 5, RSIPeriod: 5, OrderNotional: 500}, prices, 10_000)

	var mu sync.Mutex
	var signals []*models.Signal
	var fills []*models.Order
	e.TapSignals(func(s *models.Signal) {
		mu.Lock()
		signals = append(signals, s)
		mu.Unlock()
	})
	e.TapExecutions(func(o *models.Order) {
		mu.Lock()
		fills = append(fills, o)
		mu.Unlock()
	})

	stop := make(chan struct{})
	feed(e, "BTCUSDT", []float64{110, 110, 110, 110, 100, 95})
	e.evalAll(context.Background(), stop)
	mu.Lock()
	if len(signals) != 0 {
		t.Fatalf("hold reached the tap: %+v", signals)
	}
	mu.Unlock()

	feed(e, "BTCUSDT", []float64{105, 112})
	e.evalAll(context.Background(), stop)

	mu.Lock()
	defer mu.Unlock()
	if len(signals) != 1 || signals[0].Action != models.ActionBuy {
		t.Fatalf("signals = %+v", signals)
	}
	if len(fills) != 1 || fills[0].Side != models.OrderSideBuy {
		t.Fatalf("fills = %+v", fills)
	}
}

func TestDailyLossHalts(t *testing.T) {
	prices := &stubPrices{m: map[string]float64{"BTCUSDT": 100}}
	e, _, _ := testEngine(t, Config{Symbols: []string{"BTCUSDT"}, OrderNotional: 1000, MaxDailyLoss: 50}, prices, 10_000)

	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	e.execute(context.Background(), &models.Signal{Symbol: "BTCUSDT", Action: models.ActionBuy})
	prices.set("BTCUSDT", 90) // -100 on a 1000 position
	e.markAndCheckRisk()

	st := e.Status()
	if !st.Halted || st.HaltReason == "" {
		t.Fatalf("status = %+v", st)
	}
	if st.DailyPnL >= 0 {
		t.Fatalf("daily pnl = %v", st.DailyPnL)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	prices := &stubPrices{m: map[string]float64{"BTCUSDT": 100}}
	e, _, _ := testEngine(t, Config{Symbols: []string{"BTCUSDT"}, EvalInterval: 10 * time.Millisecond}, prices, 10_000)

	if e.Status().Running {
		t.Fatal("running before start")
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(context.Background()); err == nil {
		t.Fatal("double start allowed")
	}
	st := e.Status()
	if !st.Running || st.StartedAt == nil {
		t.Fatalf("status = %+v", st)
	}

	feed(e, "BTCUSDT", flatSeries(20, 100))
	time.Sleep(50 * time.Millisecond)

	e.Stop()
	e.Stop() // idempotent
	if e.Status().Running {
		t.Fatal("still running after stop")
	}
}
