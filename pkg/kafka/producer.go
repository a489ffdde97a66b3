package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

var (
	producerPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cypher_kafka_producer_messages_total",
		Help: "Messages handed to the Kafka writer",
	}, []string{"topic", "result"})
	producerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cypher_kafka_producer_bytes_total",
		Help: "Payload bytes handed to the Kafka writer",
	}, []string{"topic"})
	producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cypher_kafka_producer_publish_seconds",
		Help:    "WriteMessages latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
)

var compressions = map[string]kafka.Compression{
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

// Message is a key/value pair destined for a topic. Value may be
// []byte, string, or any JSON-marshalable type.
type Message struct {
	Key   []byte
	Value interface{}
}

// Producer wraps a kafka-go writer with batching and metrics.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer builds a producer from the given options. Brokers are
// required; everything else has sane defaults.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: brokers are required")
	}

	comp, ok := compressions[cfg.Compression]
	if !ok {
		comp = kafka.Gzip
	}
	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}

	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  comp,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}}, nil
}

func encodeValue(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

// Publish writes a single message to topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	v, err := encodeValue(value)
	if err != nil {
		return err
	}
	return p.write(ctx, topic, int64(len(v)), kafka.Message{
		Topic: topic,
		Key:   key,
		Value: v,
		Time:  time.Now(),
	})
}

// PublishBatch writes all messages to topic in one writer call.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(messages))
	var total int64
	now := time.Now()
	for _, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		total += int64(len(v))
		msgs = append(msgs, kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: now})
	}
	return p.write(ctx, topic, total, msgs...)
}

func (p *Producer) write(ctx context.Context, topic string, bytes int64, msgs ...kafka.Message) error {
	start := time.Now()
	err := p.writer.WriteMessages(ctx, msgs...)
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerPublished.WithLabelValues(topic, result).Add(float64(len(msgs)))
	producerBytes.WithLabelValues(topic).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	return err
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
