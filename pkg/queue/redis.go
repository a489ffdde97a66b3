package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"CypherFeed/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// QueueMode selects which sides of the queue this instance runs.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

// RedisQueue is a Redis-list backed job queue. Messages are LPush'd to a
// list and popped by workers; failures land in a retry zset scored by the
// retry deadline and finally in a dead-letter list.
type RedisQueue struct {
	l      *logger.Logger
	cfg    *QueueConfig
	client *redis.Client
	mode   QueueMode

	msgKey   string
	retryKey string
	dlqKey   string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	wg     sync.WaitGroup
	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisQueue creates a queue over an existing Redis client.
func NewRedisQueue(lgr *logger.Logger, cfg *QueueConfig, client *redis.Client, mode QueueMode) *RedisQueue {
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	const prefix = "cypher:queue"
	return &RedisQueue{
		l:        lgr,
		cfg:      cfg,
		client:   client,
		mode:     mode,
		msgKey:   prefix + ":messages",
		retryKey: prefix + ":retry",
		dlqKey:   prefix + ":dlq",
		jobs:     make(map[string]Job),
		stopCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterJob binds a job to its message type. One job per type.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.l.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.Type()]; dup {
		r.l.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.l.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start verifies connectivity and spawns workers unless producer-only.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	r.running = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.cfg.Workers; i++ {
			r.wg.Add(1)
			go r.worker()
		}
		r.wg.Add(1)
		go r.retryLoop()
	}

	r.l.Info("redis queue started",
		logger.String("mode", r.mode.String()),
		logger.Int("workers", r.cfg.Workers),
		logger.String("addr", r.client.Options().Addr))
	return nil
}

// Stop drains workers, honoring the context deadline.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	if r.mode != ModeProducerOnly {
		close(r.stopCh)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	case <-done:
		r.l.Info("redis queue stopped")
		return nil
	}
}

// PublishMessage enqueues a message of the given type.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return fmt.Errorf("queue not running")
	}
	if r.mode != ModeProducerOnly {
		if _, ok := r.jobs[msgType]; !ok {
			return fmt.Errorf("no job registered for type: %s", msgType)
		}
	}

	msg := Message{
		ID:        strconv.FormatInt(time.Now().UnixNano(), 10),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.msgKey, data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (r *RedisQueue) worker() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ctx.Done():
			return
		default:
			r.popOne()
		}
	}
}

func (r *RedisQueue) popOne() {
	ctx, cancel := context.WithTimeout(r.ctx, time.Second)
	defer cancel()

	result, err := r.client.BRPop(ctx, time.Second, r.msgKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		r.l.Error("brpop", logger.Error(err))
		time.Sleep(time.Second)
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.l.Error("unmarshal message", logger.Error(err))
		return
	}
	r.dispatch(msg)
}

func (r *RedisQueue) dispatch(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.l.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		return
	}

	// Decoded JSON objects arrive as maps; hand jobs raw JSON instead so
	// ParsePayload can target concrete types.
	payload := msg.Payload
	if m, isMap := payload.(map[string]interface{}); isMap {
		if b, err := json.Marshal(m); err == nil {
			payload = json.RawMessage(b)
		}
	}

	err := job.Handle(r.ctx, payload)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	r.l.Error("job failed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= r.cfg.RetryLimit {
		r.toDeadLetter(msg)
		return
	}
	msg.Attempts++
	r.scheduleRetry(msg, time.Now().Add(r.cfg.RetryDelay))
}

func (r *RedisQueue) scheduleRetry(msg Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.l.Error("marshal retry", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.retryKey, redis.Z{
		Score:  float64(at.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		r.l.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) toDeadLetter(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.l.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.dlqKey, data).Err(); err != nil {
		r.l.Error("lpush dlq", logger.Error(err))
	}
	r.l.Error("message moved to dlq", logger.String("id", msg.ID), logger.String("type", msg.Type))
}

// retryLoop moves due retry messages back onto the main list.
func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.requeueDue()
		}
	}
}

func (r *RedisQueue) requeueDue() {
	due, err := r.client.ZRangeByScoreWithScores(r.ctx, r.retryKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.l.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, z := range due {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		data := z.Member.(string)
		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, r.retryKey, data)
		pipe.LPush(r.ctx, r.msgKey, data)
		if _, err := pipe.Exec(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.l.Error("requeue retry", logger.Error(err))
		}
	}
}
