package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

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

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

const (
	taskEcho  TaskType = "echo"
	taskBlock TaskType = "block"
	taskSlow  TaskType = "slow"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	return New(testLogger(t), nopMetrics{}, cfg)
}

func mustResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func TestPoolRunsTask(t *testing.T) {
	p := newTestPool(t, Config{Workers: 2, QueueSize: 16})
	p.Register(taskEcho, func(_ context.Context, payload any) (any, error) {
		return payload, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	ch, err := p.Submit(&Task{Type: taskEcho, Payload: 42})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res := mustResult(t, ch)
	if res.Err != nil {
		t.Fatalf("result error: %v", res.Err)
	}
	if res.Value.(int) != 42 {
		t.Errorf("Value = %v, want 42", res.Value)
	}
	if res.Elapsed <= 0 {
		t.Error("Elapsed not recorded")
	}
}

func TestPoolUnknownTask(t *testing.T) {
	p := newTestPool(t, Config{Workers: 1, QueueSize: 4})
	if _, err := p.Submit(&Task{Type: "nope"}); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("err = %v, want ErrUnknownTask", err)
	}
}

func TestPoolPriorityOrdering(t *testing.T) {
	p := newTestPool(t, Config{Workers: 1, QueueSize: 16})

	var mu sync.Mutex
	var order []int

	started := make(chan struct{})
	release := make(chan struct{})
	p.Register(taskBlock, func(_ context.Context, _ any) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	p.Register(taskEcho, func(_ context.Context, payload any) (any, error) {
		mu.Lock()
		order = append(order, payload.(int))
		mu.Unlock()
		return payload, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	// occupy the single worker so the next submissions queue up
	if _, err := p.Submit(&Task{Type: taskBlock}); err != nil {
		t.Fatalf("Submit blocker: %v", err)
	}
	<-started

	var chans []<-chan Result
	for i, prio := range []int{1, 5, 9, 5} {
		ch, err := p.Submit(&Task{Type: taskEcho, Priority: prio, Payload: i})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		chans = append(chans, ch)
	}
	close(release)
	for _, ch := range chans {
		mustResult(t, ch)
	}

	mu.Lock()
	defer mu.Unlock()
	// highest priority first, FIFO within the same priority
	want := []int{2, 1, 3, 0}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("execution order = %v, want %v", order, want)
	}
}

func TestPoolTaskTimeout(t *testing.T) {
	p := newTestPool(t, Config{Workers: 1, QueueSize: 4})
	p.Register(taskSlow, func(ctx context.Context, _ any) (any, error) {
		select {
		case <-time.After(2 * time.Second):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	ch, err := p.Submit(&Task{Type: taskSlow, Timeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res := mustResult(t, ch)
	if !errors.Is(res.Err, ErrTaskTimeout) {
		t.Fatalf("err = %v, want ErrTaskTimeout", res.Err)
	}
}

func TestPoolQueueFull(t *testing.T) {
	p := newTestPool(t, Config{Workers: 1, QueueSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	p.Register(taskBlock, func(_ context.Context, _ any) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	p.Register(taskEcho, func(_ context.Context, payload any) (any, error) {
		return payload, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer func() {
		close(release)
		p.Stop()
	}()

	if _, err := p.Submit(&Task{Type: taskBlock}); err != nil {
		t.Fatalf("Submit blocker: %v", err)
	}
	<-started

	if _, err := p.Submit(&Task{Type: taskEcho, Payload: 1}); err != nil {
		t.Fatalf("Submit queued: %v", err)
	}
	if _, err := p.Submit(&Task{Type: taskEcho, Payload: 2}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if got := p.Stats().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
}

func TestPoolStopDrainsQueued(t *testing.T) {
	p := newTestPool(t, Config{Workers: 1, QueueSize: 8})
	p.Register(taskEcho, func(_ context.Context, payload any) (any, error) {
		return payload, nil
	})

	// never started, so the task stays queued
	ch, err := p.Submit(&Task{Type: taskEcho, Payload: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p.Stop()

	res := mustResult(t, ch)
	if !errors.Is(res.Err, ErrPoolClosed) {
		t.Fatalf("err = %v, want ErrPoolClosed", res.Err)
	}
	if _, err := p.Submit(&Task{Type: taskEcho, Payload: 2}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Submit after stop err = %v, want ErrPoolClosed", err)
	}
}

func TestPoolStats(t *testing.T) {
	p := newTestPool(t, Config{Workers: 2, QueueSize: 8})
	p.Register(taskEcho, func(_ context.Context, payload any) (any, error) {
		return payload, nil
	})
	p.Register(taskSlow, func(_ context.Context, _ any) (any, error) {
		return nil, errors.New("boom")
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	ok, _ := p.Submit(&Task{Type: taskEcho, Payload: 1})
	bad, _ := p.Submit(&Task{Type: taskSlow})
	mustResult(t, ok)
	if res := mustResult(t, bad); res.Err == nil {
		t.Fatal("want handler error")
	}

	s := p.Stats()
	if s.Workers != 2 {
		t.Errorf("Workers = %d, want 2", s.Workers)
	}
	if s.Completed != 1 {
		t.Errorf("Completed = %d, want 1", s.Completed)
	}
	if s.Failed != 1 {
		t.Errorf("Failed = %d, want 1", s.Failed)
	}
}
