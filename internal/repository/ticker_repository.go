package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CypherFeed/internal/domain/models"
	"CypherFeed/internal/domain/repository"
	pkgkafka "CypherFeed/pkg/kafka"
)

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseStorage creates ClickHouse storage.
func NewClickHouseStorage(db *sql.DB, table string) repository.Storage {
	return &ClickHouseStorage{db: db, table: table}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func tickerArgs(t *models.Ticker) []interface{} {
	// event_id and seq give idempotent replays a dedup key
	eventID := fmt.Sprintf("%s-%d", t.Symbol, t.Timestamp)
	return []interface{}{
		time.Unix(t.Timestamp, 0),
		t.Symbol,
		t.Price,
		t.Volume,
		t.Source,
		eventID,
		uint64(t.Timestamp),
	}
}

func (s *ClickHouseStorage) Store(ctx context.Context, t *models.Ticker) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, source, event_id, seq) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q, tickerArgs(t)...)
	return err
}

func (s *ClickHouseStorage) StoreBatch(ctx context.Context, ticks []*models.Ticker) error {
	if len(ticks) == 0 {
		return nil
	}
	// Multi-row VALUES insert, chunked to keep statements bounded.
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, t := range ticks[start:end] {
			if t == nil || t.Symbol == "" || t.Timestamp == 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, tickerArgs(t)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, source, event_id, seq) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Ticker, error) {
	q := fmt.Sprintf("SELECT symbol, ts, price, volume, source FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []*models.Ticker
	for rows.Next() {
		var t models.Ticker
		var ts time.Time
		if err := rows.Scan(&t.Symbol, &ts, &t.Price, &t.Volume, &t.Source); err != nil {
			return nil, err
		}
		t.Timestamp = ts.Unix()
		ticks = append(ticks, &t)
	}
	return ticks, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // Managed by pkg
}

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func tickerValue(t *models.Ticker) map[string]interface{} {
	return map[string]interface{}{
		"symbol": t.Symbol,
		"t":      t.Timestamp,
		"c":      t.Price,
		"v":      t.Volume,
		"src":    t.Source,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, t *models.Ticker) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Symbol), tickerValue(t))
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, ticks []*models.Ticker) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(ticks))
	for i, t := range ticks {
		msgs[i] = pkgkafka.Message{Key: []byte(t.Symbol), Value: tickerValue(t)}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// KafkaExecutionPublisher publishes simulated fills to the execution
// topic.
type KafkaExecutionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaExecutionPublisher(producer *pkgkafka.Producer, topic string) *KafkaExecutionPublisher {
	return &KafkaExecutionPublisher{producer: producer, topic: topic}
}

func (p *KafkaExecutionPublisher) PublishExecution(ctx context.Context, o *models.Order) error {
	return p.producer.Publish(ctx, p.topic, []byte(o.Symbol), map[string]interface{}{
		"id":          o.ID,
		"symbol":      o.Symbol,
		"side":        string(o.Side),
		"price":       o.Price,
		"base_size":   o.BaseSize,
		"quote_spent": o.QuoteSpent,
		"create_time": o.CreateTime.Unix(),
	})
}
