package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CypherFeed/internal/analysis"
	domrepo "CypherFeed/internal/domain/repository"
	"CypherFeed/internal/workerpool"
)

// ErrNoCandles is returned when a symbol has no stored candles yet.
var ErrNoCandles = errors.New("no candles for symbol")

// AnalysisUseCase runs indicator, pattern, and sentiment computations
// on the worker pool over stored candles.
type AnalysisUseCase struct {
	store domrepo.CandleStore
	pool  *workerpool.Pool
}

func NewAnalysisUseCase(store domrepo.CandleStore, pool *workerpool.Pool) *AnalysisUseCase {
	return &AnalysisUseCase{store: store, pool: pool}
}

// IndicatorsResult bundles the standard indicator set for one symbol.
// Volatility is annualized realized volatility over the last period
// log returns.
type IndicatorsResult struct {
	Symbol     string           `json:"symbol"`
	SMA        float64          `json:"sma"`
	EMA        float64          `json:"ema"`
	RSI        float64          `json:"rsi"`
	Volatility float64          `json:"volatility"`
	Pattern    analysis.Pattern `json:"pattern"`
	Candles    int              `json:"candles"`
}

// run submits one task and waits for its result.
func (uc *AnalysisUseCase) run(ctx context.Context, t *workerpool.Task) (any, error) {
	resCh, err := uc.pool.Submit(t)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", t.Type, err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resCh:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Value, nil
	}
}

// Indicators computes SMA, RSI, and the 3-candle pattern for the last
// n candles of a symbol.
func (uc *AnalysisUseCase) Indicators(ctx context.Context, symbol string, n, period int, tf domrepo.Timeframe) (*IndicatorsResult, error) {
	if symbol == "" {
		return nil, ErrSymbolRequired
	}
	if n <= 0 {
		n = 100
	}
	if period <= 0 {
		period = 14
	}
	candles, err := uc.store.GetLatestNCandles(ctx, symbol, n, tf)
	if err != nil {
		return nil, fmt.Errorf("latest candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCandles, symbol)
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	smaV, err := uc.run(ctx, &workerpool.Task{
		Type:     workerpool.TaskSMA,
		Priority: 5,
		Payload:  workerpool.SeriesPayload{Symbol: symbol, Values: closes, Period: period},
	})
	if err != nil {
		return nil, err
	}
	emaV, err := uc.run(ctx, &workerpool.Task{
		Type:     workerpool.TaskEMA,
		Priority: 5,
		Payload:  workerpool.SeriesPayload{Symbol: symbol, Values: closes, Period: period},
	})
	if err != nil {
		return nil, err
	}
	rsiV, err := uc.run(ctx, &workerpool.Task{
		Type:     workerpool.TaskRSI,
		Priority: 5,
		Payload:  workerpool.SeriesPayload{Symbol: symbol, Values: closes, Period: period},
	})
	if err != nil {
		return nil, err
	}
	volV, err := uc.run(ctx, &workerpool.Task{
		Type:     workerpool.TaskVolatility,
		Priority: 4,
		Payload: workerpool.VolatilityPayload{
			Symbol:    symbol,
			Candles:   candles,
			Window:    period,
			Timeframe: string(tf),
		},
	})
	if err != nil {
		return nil, err
	}
	patV, err := uc.run(ctx, &workerpool.Task{
		Type:     workerpool.TaskPattern,
		Priority: 3,
		Payload:  workerpool.CandlesPayload{Symbol: symbol, Candles: candles},
	})
	if err != nil {
		return nil, err
	}

	res := &IndicatorsResult{Symbol: symbol, Candles: len(candles)}
	res.SMA, _ = smaV.(float64)
	res.EMA, _ = emaV.(float64)
	res.RSI, _ = rsiV.(float64)
	res.Volatility, _ = volV.(float64)
	res.Pattern, _ = patV.(analysis.Pattern)
	return res, nil
}

// Sentiment scores a batch of texts on the pool.
func (uc *AnalysisUseCase) Sentiment(ctx context.Context, symbol string, texts []string) (float64, error) {
	if len(texts) == 0 {
		return 0, fmt.Errorf("texts required")
	}
	v, err := uc.run(ctx, &workerpool.Task{
		Type:     workerpool.TaskSentiment,
		Priority: 1,
		Timeout:  10 * time.Second,
		Payload:  workerpool.TextsPayload{Symbol: symbol, Texts: texts},
	})
	if err != nil {
		return 0, err
	}
	score, _ := v.(float64)
	return score, nil
}
