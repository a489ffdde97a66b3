package usecase

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"CypherFeed/internal/analysis"
	"CypherFeed/internal/domain/models"
	domrepo "CypherFeed/internal/domain/repository"
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

type stubCandleStore struct {
	candles []models.Candle
	err     error
}

func (s *stubCandleStore) GetCandles(_ context.Context, _ string, _, _ time.Time, _ domrepo.Timeframe) ([]models.Candle, error) {
	return s.candles, s.err
}

func (s *stubCandleStore) GetLatestNCandles(_ context.Context, _ string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	if n > len(s.candles) {
		n = len(s.candles)
	}
	return s.candles[len(s.candles)-n:], nil
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
	pool := workerpool.New(testLogger(t), nopMetrics{}, workerpool.Config{Workers: 2, QueueSize: 64})
	analysis.RegisterHandlers(pool)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		pool.Stop()
		cancel()
	})
	return pool
}

func risingCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	base := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := range out {
		open := 100 + float64(i)
		out[i] = models.Candle{
			Bucket: base.Add(time.Duration(i) * time.Minute),
			Symbol: "BTCUSDT",
			Open:   open,
			High:   open + 1.1,
			Low:    open - 0.1,
			Close:  open + 1,
			Volume: 1,
		}
	}
	return out
}

func TestIndicatorsOverStoredCandles(t *testing.T) {
	store := &stubCandleStore{candles: risingCandles(30)}
	uc := NewAnalysisUseCase(store, testPool(t))

	res, err := uc.Indicators(context.Background(), "BTCUSDT", 30, 14, domrepo.TF1m)
	if err != nil {
		t.Fatal(err)
	}
	if res.Candles != 30 {
		t.Errorf("Candles = %d, want 30", res.Candles)
	}
	// closes run 101..130, so the 14-bar SMA ends at the mean of 117..130
	wantSMA := (117.0 + 130.0) / 2
	if res.SMA != wantSMA {
		t.Errorf("SMA = %v, want %v", res.SMA, wantSMA)
	}
	if res.RSI != 100 {
		t.Errorf("RSI = %v, want 100 for a pure uptrend", res.RSI)
	}
	if res.Pattern != analysis.PatternThreeSoldiers {
		t.Errorf("Pattern = %q, want %q", res.Pattern, analysis.PatternThreeSoldiers)
	}
	// on a unit ramp the EMA settles at close - 6.5 for period 14
	if math.Abs(res.EMA-123.5) > 1e-6 {
		t.Errorf("EMA = %v, want 123.5", res.EMA)
	}
	if res.Volatility <= 0 {
		t.Errorf("Volatility = %v, want positive for moving closes", res.Volatility)
	}
}

func TestIndicatorsValidation(t *testing.T) {
	uc := NewAnalysisUseCase(&stubCandleStore{}, testPool(t))

	if _, err := uc.Indicators(context.Background(), "", 10, 14, domrepo.TF1m); err == nil {
		t.Error("empty symbol accepted")
	}
	if _, err := uc.Indicators(context.Background(), "BTCUSDT", 10, 14, domrepo.TF1m); err == nil {
		t.Error("no candles accepted")
	}

	failing := NewAnalysisUseCase(&stubCandleStore{err: fmt.Errorf("ch down")}, testPool(t))
	if _, err := failing.Indicators(context.Background(), "BTCUSDT", 10, 14, domrepo.TF1m); err == nil {
		t.Error("store error not propagated")
	}
}

func TestSentimentOnPool(t *testing.T) {
	uc := NewAnalysisUseCase(&stubCandleStore{}, testPool(t))

	score, err := uc.Sentiment(context.Background(), "BTCUSDT", []string{"huge pump and rally"})
	if err != nil {
		t.Fatal(err)
	}
	if score != 1 {
		t.Errorf("score = %v, want 1", score)
	}
	if _, err := uc.Sentiment(context.Background(), "BTCUSDT", nil); err == nil {
		t.Error("empty texts accepted")
	}
}

func TestGetCandlesLimitsAndValidation(t *testing.T) {
	store := &stubCandleStore{candles: risingCandles(5)}
	uc := NewCandlesUseCase(store)

	now := time.Now()
	res, err := uc.GetCandles(context.Background(), GetCandlesParams{
		Symbol:    "BTCUSDT",
		From:      now.Add(-time.Hour),
		To:        now,
		Timeframe: domrepo.TF1m,
		Limit:     3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 3 || len(res.Candles) != 3 {
		t.Errorf("Count = %d, want 3", res.Count)
	}

	if _, err := uc.GetCandles(context.Background(), GetCandlesParams{
		Symbol: "BTCUSDT",
		From:   now,
		To:     now.Add(-time.Hour),
	}); err == nil {
		t.Error("inverted range accepted")
	}
	if _, err := uc.GetCandles(context.Background(), GetCandlesParams{From: now.Add(-time.Hour), To: now}); err == nil {
		t.Error("empty symbol accepted")
	}
}
