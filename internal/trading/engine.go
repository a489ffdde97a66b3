package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CypherFeed/internal/domain/models"
	drepo "CypherFeed/internal/domain/repository"
	"CypherFeed/internal/portfolio"
	"CypherFeed/internal/workerpool"
	"CypherFeed/pkg/logger"
)

// ExecutionPublisher receives every simulated fill.
type ExecutionPublisher interface {
	PublishExecution(ctx context.Context, o *models.Order) error
}

// Config holds the auto-trading parameters.
type Config struct {
	Symbols          []string
	FastPeriod       int
	SlowPeriod       int
	RSIPeriod        int
	OrderNotional    float64 // quote size per entry
	MaxPositionValue float64 // per-symbol notional cap
	MaxDailyLoss     float64 // quote loss that halts the engine
	EvalInterval     time.Duration
}

func (c *Config) defaults() {
	if c.FastPeriod <= 0 {
		c.FastPeriod = 9
	}
	if c.SlowPeriod <= c.FastPeriod {
		c.SlowPeriod = c.FastPeriod * 3
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.OrderNotional <= 0 {
		c.OrderNotional = 100
	}
	if c.EvalInterval <= 0 {
		c.EvalInterval = 5 * time.Second
	}
}

// Engine runs the simulated trading loop: price history in, analysis
// tasks on the worker pool, signals through risk checks, fills into
// the portfolio book.
type Engine struct {
	cfg     Config
	pool    *workerpool.Pool
	broker  drepo.Broker
	book    *portfolio.Book
	prices  PriceSource
	pub     ExecutionPublisher
	l       *logger.Logger
	metrics drepo.Metrics

	// fan-out callbacks, set during wiring before Start
	onSignal    func(*models.Signal)
	onExecution func(*models.Order)

	mu          sync.Mutex
	running     bool
	startedAt   time.Time
	stopCh      chan struct{}
	wg          sync.WaitGroup
	history     map[string][]float64
	prevFast    map[string]float64
	prevSlow    map[string]float64
	lastSignals map[string]*models.Signal
	ordersTotal int64
	dayStart    float64
	halted      bool
	haltReason  string
}

func NewEngine(cfg Config, pool *workerpool.Pool, broker drepo.Broker, book *portfolio.Book, prices PriceSource, pub ExecutionPublisher, l *logger.Logger, m drepo.Metrics) *Engine {
	cfg.defaults()
	return &Engine{
		cfg:         cfg,
		pool:        pool,
		broker:      broker,
		book:        book,
		prices:      prices,
		pub:         pub,
		l:           l,
		metrics:     m,
		history:     make(map[string][]float64),
		prevFast:    make(map[string]float64),
		prevSlow:    make(map[string]float64),
		lastSignals: make(map[string]*models.Signal),
	}
}

// TapSignals registers a callback invoked for every actionable signal,
// including signals suppressed by a risk halt. Must be called before
// Start.
func (e *Engine) TapSignals(fn func(*models.Signal)) { e.onSignal = fn }

// TapExecutions registers a callback invoked for every applied fill.
// Must be called before Start.
func (e *Engine) TapExecutions(fn func(*models.Order)) { e.onExecution = fn }

// OnTick records a price observation for signal evaluation. Safe to
// call whether or not the engine is running.
func (e *Engine) OnTick(t *models.Ticker) {
	if t == nil || t.Price <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	h := append(e.history[t.Symbol], t.Price)
	max := e.cfg.SlowPeriod * 3
	if max < 64 {
		max = 64
	}
	if len(h) > max {
		h = h[len(h)-max:]
	}
	e.history[t.Symbol] = h
}

// Start launches the evaluation loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("trading: already running")
	}
	e.running = true
	e.startedAt = time.Now()
	e.stopCh = make(chan struct{})
	e.halted = false
	e.haltReason = ""
	e.dayStart = e.book.Snapshot().Equity

	e.wg.Add(1)
	go e.loop(ctx, e.stopCh)
	e.l.Info("trading engine started", logger.Strings("symbols", e.cfg.Symbols))
	return nil
}

// Stop halts evaluation. In-flight analysis results are discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()
	e.wg.Wait()
	e.l.Info("trading engine stopped")
}

// Status reports the controller state.
func (e *Engine) Status() models.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := models.EngineStatus{
		Running:     e.running,
		Symbols:     e.cfg.Symbols,
		OrdersTotal: e.ordersTotal,
		Halted:      e.halted,
		HaltReason:  e.haltReason,
		LastSignals: make(map[string]*models.Signal, len(e.lastSignals)),
	}
	if e.running {
		t := e.startedAt
		st.StartedAt = &t
	}
	for k, v := range e.lastSignals {
		s := *v
		st.LastSignals[k] = &s
	}
	st.DailyPnL = e.book.Snapshot().Equity - e.dayStart
	return st
}

func (e *Engine) loop(ctx context.Context, stopCh chan struct{}) {
	defer e.wg.Done()
	t := time.NewTicker(e.cfg.EvalInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-t.C:
			e.evalAll(ctx, stopCh)
		}
	}
}

func (e *Engine) evalAll(ctx context.Context, stopCh chan struct{}) {
	e.markAndCheckRisk()
	for _, sym := range e.cfg.Symbols {
		sig := e.evaluate(ctx, stopCh, sym)
		if sig == nil {
			return // stopped mid-evaluation
		}
		e.mu.Lock()
		e.lastSignals[sym] = sig
		halted := e.halted
		e.mu.Unlock()

		if sig.Action == models.ActionHold {
			continue
		}
		if e.onSignal != nil {
			e.onSignal(sig)
		}
		if halted {
			e.l.Warn("signal suppressed, engine halted",
				logger.String("symbol", sym),
				logger.String("action", string(sig.Action)))
			continue
		}
		e.execute(ctx, sig)
	}
}

// markAndCheckRisk refreshes unrealized P&L and trips the daily-loss
// halt when the drawdown limit is breached.
func (e *Engine) markAndCheckRisk() {
	marks := make(map[string]float64, len(e.cfg.Symbols))
	for _, sym := range e.cfg.Symbols {
		if p, ok := e.prices.Last(sym); ok {
			marks[sym] = p
		}
	}
	e.book.MarkToMarket(marks)

	if e.cfg.MaxDailyLoss <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted {
		return
	}
	pnl := e.book.Snapshot().Equity - e.dayStart
	if pnl <= -e.cfg.MaxDailyLoss {
		e.halted = true
		e.haltReason = fmt.Sprintf("daily loss %.2f exceeds limit %.2f", -pnl, e.cfg.MaxDailyLoss)
		e.metrics.RecordError("trading_halt")
		e.l.Error("trading halted", logger.String("reason", e.haltReason))
	}
}

// evaluate schedules SMA and RSI tasks and folds the results into a
// signal. Returns nil only when the engine stopped while waiting.
func (e *Engine) evaluate(ctx context.Context, stopCh chan struct{}, symbol string) *models.Signal {
	e.mu.Lock()
	series := append([]float64(nil), e.history[symbol]...)
	prevFast, prevSlow := e.prevFast[symbol], e.prevSlow[symbol]
	e.mu.Unlock()

	hold := &models.Signal{Symbol: symbol, Action: models.ActionHold, Timestamp: time.Now()}
	if len(series) < e.cfg.SlowPeriod+1 {
		hold.Reason = "warming up"
		return hold
	}

	fast, ok := e.runSeries(stopCh, workerpool.TaskSMA, symbol, series, e.cfg.FastPeriod, 8)
	if !ok {
		return nil
	}
	slow, ok := e.runSeries(stopCh, workerpool.TaskSMA, symbol, series, e.cfg.SlowPeriod, 8)
	if !ok {
		return nil
	}
	rsi, ok := e.runSeries(stopCh, workerpool.TaskRSI, symbol, series, e.cfg.RSIPeriod, 5)
	if !ok {
		return nil
	}

	sig := &models.Signal{
		Symbol:    symbol,
		Action:    models.ActionHold,
		FastSMA:   fast,
		SlowSMA:   slow,
		RSI:       rsi,
		Timestamp: time.Now(),
	}

	crossedUp := prevFast != 0 && prevFast <= prevSlow && fast > slow
	crossedDown := prevFast != 0 && prevFast >= prevSlow && fast < slow
	switch {
	case crossedUp && rsi < 70:
		sig.Action = models.ActionBuy
		sig.Reason = "fast sma crossed above slow"
	case crossedDown:
		sig.Action = models.ActionSell
		sig.Reason = "fast sma crossed below slow"
	case rsi >= 70:
		sig.Reason = "overbought"
	default:
		sig.Reason = "no cross"
	}

	e.mu.Lock()
	e.prevFast[symbol] = fast
	e.prevSlow[symbol] = slow
	e.mu.Unlock()
	return sig
}

// runSeries submits one numeric analysis task and waits for its value.
func (e *Engine) runSeries(stopCh chan struct{}, tt workerpool.TaskType, symbol string, series []float64, period, priority int) (float64, bool) {
	resCh, err := e.pool.Submit(&workerpool.Task{
		Type:     tt,
		Priority: priority,
		Payload:  workerpool.SeriesPayload{Symbol: symbol, Values: series, Period: period},
	})
	if err != nil {
		e.l.Warn("analysis submit failed", logger.String("task", string(tt)), logger.Error(err))
		return 0, true // treated as hold upstream via zero values
	}
	select {
	case <-stopCh:
		return 0, false
	case r := <-resCh:
		if r.Err != nil {
			e.l.Warn("analysis task failed", logger.String("task", string(tt)), logger.Error(r.Err))
			return 0, true
		}
		v, _ := r.Value.(float64)
		return v, true
	}
}

// execute sizes, risk-checks, and fills one signal.
func (e *Engine) execute(ctx context.Context, sig *models.Signal) {
	var (
		order *models.Order
		err   error
	)
	switch sig.Action {
	case models.ActionBuy:
		if !e.buyAllowed(sig.Symbol) {
			e.l.Info("buy skipped, position cap reached", logger.String("symbol", sig.Symbol))
			return
		}
		order, err = e.broker.PlaceMarketQuote(ctx, sig.Symbol, models.OrderSideBuy, e.cfg.OrderNotional)
	case models.ActionSell:
		pos, ok := e.book.Position(sig.Symbol)
		if !ok || pos.BaseSize <= 0 {
			return
		}
		order, err = e.broker.PlaceMarketQuote(ctx, sig.Symbol, models.OrderSideSell, pos.BaseSize*pos.LastPrice)
	default:
		return
	}
	if err != nil {
		e.metrics.RecordError("trading_order")
		e.l.Warn("order failed", logger.String("symbol", sig.Symbol), logger.Error(err))
		return
	}

	if err := e.book.ApplyFill(order); err != nil {
		e.metrics.RecordError("trading_fill")
		e.l.Warn("fill rejected", logger.String("symbol", sig.Symbol), logger.Error(err))
		return
	}

	e.mu.Lock()
	e.ordersTotal++
	e.mu.Unlock()
	e.metrics.RecordMessageSent("executions", order.Symbol)
	e.l.Info("order filled",
		logger.String("symbol", order.Symbol),
		logger.String("side", string(order.Side)),
		logger.Any("price", order.Price),
		logger.Any("base_size", order.BaseSize))

	if e.onExecution != nil {
		e.onExecution(order)
	}
	if e.pub != nil {
		if err := e.pub.PublishExecution(ctx, order); err != nil {
			e.metrics.RecordError("trading_publish")
			e.l.Warn("execution publish failed", logger.Error(err))
		}
	}
}

// buyAllowed enforces the per-symbol notional cap.
func (e *Engine) buyAllowed(symbol string) bool {
	if e.cfg.MaxPositionValue <= 0 {
		return true
	}
	pos, ok := e.book.Position(symbol)
	if !ok {
		return true
	}
	return pos.MarketValue+e.cfg.OrderNotional <= e.cfg.MaxPositionValue
}
