package workerpool

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	drepo "CypherFeed/internal/domain/repository"
	"CypherFeed/pkg/logger"
)

var (
	// ErrQueueFull is returned when the pending queue is at capacity.
	ErrQueueFull = errors.New("workerpool: queue full")
	// ErrPoolClosed is returned for submissions to a stopped pool and
	// for tasks still queued when the pool stops.
	ErrPoolClosed = errors.New("workerpool: closed")
	// ErrTaskTimeout is returned when a task exceeds its deadline.
	ErrTaskTimeout = errors.New("workerpool: task timeout")
	// ErrUnknownTask is returned for task types with no registered handler.
	ErrUnknownTask = errors.New("workerpool: unknown task type")
)

// HandlerFunc executes one task payload. Handlers should honor ctx, but
// the pool also enforces the deadline externally.
type HandlerFunc func(ctx context.Context, payload any) (any, error)

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// item is a queued task plus its delivery channel.
type item struct {
	task  *Task
	seq   uint64 // FIFO tiebreak within a priority
	resCh chan Result
	index int
}

// priorityQueue is a max-heap on (priority, -seq).
type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].task.Priority != pq[j].task.Priority {
		return pq[i].task.Priority > pq[j].task.Priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	it := x.(*item)
	it.index = len(*pq)
	*pq = append(*pq, it)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return it
}

// Config holds pool configuration.
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

// Pool dispatches typed tasks to a fixed set of workers by priority.
type Pool struct {
	l       *logger.Logger
	metrics drepo.Metrics
	cfg     Config

	handlers map[TaskType]HandlerFunc

	mu  sync.Mutex
	pq  priorityQueue
	seq uint64

	notify   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// New creates a pool. Workers defaults to NumCPU (capped at 32),
// queue size to 256, task timeout to 30s.
func New(l *logger.Logger, metrics drepo.Metrics, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
		if cfg.Workers > 32 {
			cfg.Workers = 32
		}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	return &Pool{
		l:        l,
		metrics:  metrics,
		cfg:      cfg,
		handlers: make(map[TaskType]HandlerFunc),
		notify:   make(chan struct{}, cfg.QueueSize),
		stopCh:   make(chan struct{}),
	}
}

// Register installs the handler for a task type. Must be called before Start.
func (p *Pool) Register(t TaskType, h HandlerFunc) {
	p.handlers[t] = h
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	if p.l != nil {
		p.l.Info("worker pool started",
			logger.Int("workers", p.cfg.Workers),
			logger.Int("queue_size", p.cfg.QueueSize))
	}
}

// Submit enqueues a task. The returned channel receives exactly one Result.
func (p *Pool) Submit(t *Task) (<-chan Result, error) {
	if p.closed() {
		return nil, ErrPoolClosed
	}
	if _, ok := p.handlers[t.Type]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, t.Type)
	}

	p.mu.Lock()
	if p.pq.Len() >= p.cfg.QueueSize {
		p.mu.Unlock()
		p.rejected.Add(1)
		if p.metrics != nil {
			p.metrics.RecordTask(string(t.Type), "rejected")
		}
		return nil, ErrQueueFull
	}
	it := &item{task: t, seq: p.seq, resCh: make(chan Result, 1)}
	p.seq++
	heap.Push(&p.pq, it)
	depth := p.pq.Len()
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordPoolDepth(depth)
	}

	// capacity equals QueueSize, so this send cannot block
	p.notify <- struct{}{}
	return it.resCh, nil
}

// Stop stops the workers. In-flight tasks finish; tasks still queued
// receive ErrPoolClosed.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	p.mu.Lock()
	pending := make([]*item, 0, p.pq.Len())
	for p.pq.Len() > 0 {
		pending = append(pending, heap.Pop(&p.pq).(*item))
	}
	p.mu.Unlock()

	for _, it := range pending {
		it.resCh <- Result{Err: ErrPoolClosed}
	}
	if p.metrics != nil {
		p.metrics.RecordPoolDepth(0)
	}
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	queued := p.pq.Len()
	p.mu.Unlock()
	return Stats{
		Workers:   p.cfg.Workers,
		Queued:    queued,
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

func (p *Pool) closed() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-p.notify:
			it := p.pop()
			if it == nil {
				continue
			}
			p.execute(ctx, it)
		}
	}
}

func (p *Pool) pop() *item {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pq.Len() == 0 {
		return nil
	}
	it := heap.Pop(&p.pq).(*item)
	if p.metrics != nil {
		p.metrics.RecordPoolDepth(p.pq.Len())
	}
	return it
}

// execute runs one task under its deadline. A task runs at most once;
// on timeout the result is delivered even if the handler is still running.
func (p *Pool) execute(ctx context.Context, it *item) {
	h := p.handlers[it.task.Type]
	timeout := it.task.Timeout
	if timeout <= 0 {
		timeout = p.cfg.TaskTimeout
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p.active.Add(1)
	defer p.active.Add(-1)

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		v, err := h(tctx, it.task.Payload)
		done <- Result{Value: v, Err: err}
	}()

	var res Result
	select {
	case res = <-done:
	case <-tctx.Done():
		res = Result{Err: ErrTaskTimeout}
	}
	res.Elapsed = time.Since(start)

	outcome := "ok"
	if res.Err != nil {
		outcome = "error"
		if errors.Is(res.Err, ErrTaskTimeout) {
			outcome = "timeout"
		}
		p.failed.Add(1)
		if p.l != nil {
			p.l.Warn("task failed",
				logger.String("type", string(it.task.Type)),
				logger.Error(res.Err))
		}
	} else {
		p.completed.Add(1)
	}
	if p.metrics != nil {
		p.metrics.RecordTask(string(it.task.Type), outcome)
		p.metrics.RecordLatency("task_"+string(it.task.Type), res.Elapsed.Seconds())
	}

	it.resCh <- res
}
