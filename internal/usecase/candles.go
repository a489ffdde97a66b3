package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CypherFeed/internal/domain/models"
	domrepo "CypherFeed/internal/domain/repository"
)

var (
	// ErrSymbolRequired is returned when a query omits the symbol.
	ErrSymbolRequired = errors.New("symbol required")
	// ErrInvalidRange is returned when from is after to.
	ErrInvalidRange = errors.New("from must be <= to")
)

const (
	defaultCandleLimit = 10000
	maxCandleLimit     = 50000
)

// CandlesUseCase serves historical candle queries.
type CandlesUseCase struct {
	store domrepo.CandleStore
}

func NewCandlesUseCase(store domrepo.CandleStore) *CandlesUseCase {
	return &CandlesUseCase{store: store}
}

type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string
	Timeframe string
	From      time.Time
	To        time.Time
	Count     int
	Candles   []models.Candle
}

func (p *GetCandlesParams) normalize() error {
	if p.Symbol == "" {
		return ErrSymbolRequired
	}
	if p.From.After(p.To) {
		return ErrInvalidRange
	}
	if p.Limit <= 0 {
		p.Limit = defaultCandleLimit
	} else if p.Limit > maxCandleLimit {
		p.Limit = maxCandleLimit
	}
	return nil
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}

	candles, err := uc.store.GetCandles(ctx, p.Symbol, p.From, p.To, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) > p.Limit {
		candles = candles[:p.Limit]
	}

	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      p.From,
		To:        p.To,
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
