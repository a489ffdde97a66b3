package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher is the producing half of the queue.
type Publisher interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig tunes worker count and retry behavior.
type QueueConfig struct {
	Workers    int
	RetryLimit int
	RetryDelay time.Duration
}

// Message is the wire form of a queued job invocation.
type Message struct {
	ID        string
	Type      string
	Payload   interface{}
	Attempts  int
	Timestamp time.Time
}

// ParsePayload converts a job payload into a concrete type. Payloads may
// arrive as the original value, a decoded JSON map/slice, or raw JSON,
// depending on whether the message crossed Redis.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(p, &out); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &out, nil
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		var out T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("unsupported payload type: %T", payload)
	}
}
