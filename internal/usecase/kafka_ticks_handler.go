package usecase

import (
	"context"
	"encoding/json"
	"time"

	"CypherFeed/internal/domain/models"
	domrepo "CypherFeed/internal/domain/repository"
	pkgkafka "CypherFeed/pkg/kafka"
)

// tickEnvelope is the wire schema produced by the tick publisher.
type tickEnvelope struct {
	Symbol string  `json:"symbol"`
	T      int64   `json:"t"`
	C      float64 `json:"c"`
	V      float64 `json:"v"`
	Src    string  `json:"src"`
}

// unixSeconds collapses millisecond timestamps to seconds.
func (e *tickEnvelope) unixSeconds() int64 {
	if e.T > 1e11 {
		return e.T / 1000
	}
	return e.T
}

// KafkaTicksHandler drains the ticks topic into ClickHouse.
type KafkaTicksHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)

func NewKafkaTicksHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var env tickEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	ts := env.unixSeconds()
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(ts, 0)).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &models.Ticker{
		Symbol:    env.Symbol,
		Timestamp: ts,
		Price:     env.C,
		Volume:    env.V,
		Source:    env.Src,
	})
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", env.Symbol)
	return nil
}
