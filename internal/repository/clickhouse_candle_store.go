package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CypherFeed/internal/domain/models"
	domrepo "CypherFeed/internal/domain/repository"
	pkgch "CypherFeed/pkg/clickhouse"
	applogger "CypherFeed/pkg/logger"
)

// CHCandleStore implements CandleStore backed by ClickHouse.
type CHCandleStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client) *CHCandleStore {
	return &CHCandleStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	q, table, err := rangeQueryForTF(tf)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		s.logErr("clickhouse get_candles query error", table, symbol, tf, err)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.logErr("clickhouse get_candles scan error", table, symbol, tf, err)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.logErr("clickhouse get_candles rows error", table, symbol, tf, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse get_candles ok",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	q, table, err := latestQueryForTF(tf)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		s.logErr("clickhouse latest_candles query error", table, symbol, tf, err)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.logErr("clickhouse latest_candles scan error", table, symbol, tf, err)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		s.logErr("clickhouse latest_candles rows error", table, symbol, tf, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

func (s *CHCandleStore) logErr(msg, table, symbol string, tf domrepo.Timeframe, err error) {
	if s.l == nil {
		return
	}
	s.l.Error(msg,
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Error(err),
	)
}

// 5m has no table of its own and is rolled up from 1m at query time.
const (
	rollup5mRange = `
        SELECT toStartOfFiveMinutes(bucket) AS b, symbol,
               argMin(open, bucket) AS open, max(high) AS high,
               min(low) AS low, argMax(close, bucket) AS close,
               sum(vol) AS vol
        FROM cypherfeed.rt_candles_1m
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        GROUP BY b, symbol
        ORDER BY b ASC
    `
	rollup5mLatest = `
        SELECT toStartOfFiveMinutes(bucket) AS b, symbol,
               argMin(open, bucket) AS open, max(high) AS high,
               min(low) AS low, argMax(close, bucket) AS close,
               sum(vol) AS vol
        FROM cypherfeed.rt_candles_1m
        WHERE symbol = ?
        GROUP BY b, symbol
        ORDER BY b DESC
        LIMIT ?
    `
)

func rangeQueryForTF(tf domrepo.Timeframe) (query, table string, err error) {
	if tf == domrepo.TF5m {
		return rollup5mRange, "cypherfeed.rt_candles_1m", nil
	}
	table, err = tableForTF(tf)
	if err != nil {
		return "", "", err
	}
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `
	return fmt.Sprintf(qtpl, table), table, nil
}

func latestQueryForTF(tf domrepo.Timeframe) (query, table string, err error) {
	if tf == domrepo.TF5m {
		return rollup5mLatest, "cypherfeed.rt_candles_1m", nil
	}
	table, err = tableForTF(tf)
	if err != nil {
		return "", "", err
	}
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	return fmt.Sprintf(qtpl, table), table, nil
}

func tableForTF(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1s:
		return "cypherfeed.rt_candles_1s", nil
	case domrepo.TF1m:
		return "cypherfeed.rt_candles_1m", nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}
