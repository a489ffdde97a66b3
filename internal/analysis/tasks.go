package analysis

import (
	"context"
	"fmt"

	"CypherFeed/internal/workerpool"
)

// RegisterHandlers wires the analysis routines into the worker pool.
func RegisterHandlers(p *workerpool.Pool) {
	p.Register(workerpool.TaskSMA, func(_ context.Context, payload any) (any, error) {
		sp, ok := payload.(workerpool.SeriesPayload)
		if !ok {
			return nil, fmt.Errorf("sma: bad payload %T", payload)
		}
		return SMA(sp.Values, sp.Period), nil
	})

	p.Register(workerpool.TaskEMA, func(_ context.Context, payload any) (any, error) {
		sp, ok := payload.(workerpool.SeriesPayload)
		if !ok {
			return nil, fmt.Errorf("ema: bad payload %T", payload)
		}
		return EMA(sp.Values, sp.Period), nil
	})

	p.Register(workerpool.TaskRSI, func(_ context.Context, payload any) (any, error) {
		sp, ok := payload.(workerpool.SeriesPayload)
		if !ok {
			return nil, fmt.Errorf("rsi: bad payload %T", payload)
		}
		return RSI(sp.Values, sp.Period), nil
	})

	p.Register(workerpool.TaskPattern, func(_ context.Context, payload any) (any, error) {
		cp, ok := payload.(workerpool.CandlesPayload)
		if !ok {
			return nil, fmt.Errorf("pattern: bad payload %T", payload)
		}
		return DetectPattern(cp.Candles), nil
	})

	p.Register(workerpool.TaskVolatility, func(_ context.Context, payload any) (any, error) {
		vp, ok := payload.(workerpool.VolatilityPayload)
		if !ok {
			return nil, fmt.Errorf("volatility: bad payload %T", payload)
		}
		returns := LogReturns(vp.Candles)
		return RealizedVolatility(returns, vp.Window, BarsPerYearForTF(vp.Timeframe)), nil
	})

	p.Register(workerpool.TaskSentiment, func(_ context.Context, payload any) (any, error) {
		tp, ok := payload.(workerpool.TextsPayload)
		if !ok {
			return nil, fmt.Errorf("sentiment: bad payload %T", payload)
		}
		return SentimentScore(tp.Texts), nil
	})
}
