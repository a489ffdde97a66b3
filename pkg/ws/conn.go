package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

var (
	// ErrClosed is returned for operations on a closed connection.
	ErrClosed = errors.New("ws: connection closed")
	// ErrWriteBufferFull is returned when the outbound queue is full.
	ErrWriteBufferFull = errors.New("ws: write buffer full")
	// ErrStarted is returned when Start is called more than once.
	ErrStarted = errors.New("ws: already started")
)

// Handler receives raw frames fanned out for a channel.
// Handlers must not block; slow consumers should buffer internally.
type Handler func(channel string, data []byte)

// ChannelFunc extracts the fan-out key from a raw frame.
type ChannelFunc func(data []byte) string

// ReconnectPolicy controls how a dropped connection is re-established.
type ReconnectPolicy struct {
	Policy      string // "fixed" or "exponential"
	Interval    time.Duration
	MaxInterval time.Duration
	MaxAttempts int // consecutive failed dials before giving up; 0 = unlimited
}

func (p ReconnectPolicy) newBackOff() backoff.BackOff {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	if p.Policy == "fixed" {
		return backoff.NewConstantBackOff(interval)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = interval
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	return bo
}

func (p ReconnectPolicy) capInterval() time.Duration {
	if p.MaxInterval > 0 {
		return p.MaxInterval
	}
	if p.Interval > 0 {
		return p.Interval
	}
	return time.Second
}

// ConnConfig describes a single named upstream connection.
type ConnConfig struct {
	Name         string
	URL          string
	Subscribes   []any // JSON payloads written after every (re)connect
	PingInterval time.Duration
	PongWait     time.Duration
	ReadLimit    int64
	Reconnect    ReconnectPolicy
	Channel      ChannelFunc // nil uses DefaultChannel
}

// Conn is a managed WebSocket connection with reconnect, heartbeat,
// and channel-keyed fan-out. All frame writes go through a single
// writer goroutine.
type Conn struct {
	cfg    ConnConfig
	dialer *websocket.Dialer

	state   atomic.Int32
	started atomic.Bool
	onState func(name string, s State)
	lastErr atomic.Value // error

	subsMu sync.RWMutex
	subs   map[string][]Handler

	writeCh chan any
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func newConn(cfg ConnConfig, onState func(string, State)) *Conn {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = cfg.PingInterval * 2
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1 << 20
	}
	if cfg.Channel == nil {
		cfg.Channel = DefaultChannel
	}
	c := &Conn{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		onState: onState,
		subs:    make(map[string][]Handler),
		writeCh: make(chan any, 64),
		stopCh:  make(chan struct{}),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// Name returns the connection name.
func (c *Conn) Name() string { return c.cfg.Name }

// State returns the current connection state.
func (c *Conn) State() State { return State(c.state.Load()) }

// LastErr returns the most recent connection error, if any.
func (c *Conn) LastErr() error {
	if v := c.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
	if c.onState != nil {
		c.onState(c.cfg.Name, s)
	}
}

func (c *Conn) closed() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// Subscribe registers a handler for a channel. The wildcard "*"
// receives every frame.
func (c *Conn) Subscribe(channel string, h Handler) {
	c.subsMu.Lock()
	c.subs[channel] = append(c.subs[channel], h)
	c.subsMu.Unlock()
}

// Send queues v for JSON writing. It never blocks the caller.
func (c *Conn) Send(v any) error {
	if c.closed() {
		return ErrClosed
	}
	select {
	case c.writeCh <- v:
		return nil
	default:
		return ErrWriteBufferFull
	}
}

// Start launches the connection lifecycle. It returns immediately;
// dialing and reconnecting happen in the background. A connection
// runs at most one lifecycle: a second Start returns ErrStarted.
func (c *Conn) Start(ctx context.Context) error {
	if c.closed() {
		return ErrClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Close stops the connection permanently. No reconnect runs after Close.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	return nil
}

func (c *Conn) run(ctx context.Context) {
	defer c.wg.Done()
	defer c.setState(StateClosed)

	bo := c.cfg.Reconnect.newBackOff()
	attempts := 0
	first := true

	for {
		if c.closed() || ctx.Err() != nil {
			return
		}
		if first {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
		}

		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			c.lastErr.Store(fmt.Errorf("dial %s: %w", c.cfg.URL, err))
			attempts++
			if max := c.cfg.Reconnect.MaxAttempts; max > 0 && attempts >= max {
				return
			}
			sleep := bo.NextBackOff()
			if sleep == backoff.Stop {
				sleep = c.cfg.Reconnect.capInterval()
			}
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-time.After(sleep):
				continue
			}
		}
		attempts = 0
		bo.Reset()
		first = false

		c.setState(StateConnected)
		if err := c.session(ctx, conn); err != nil {
			c.lastErr.Store(err)
		}
		_ = conn.Close()
	}
}

// session drives one live connection: replays subscribe payloads, runs the
// writer (frames + pings) and the read loop. Returns when the connection dies.
func (c *Conn) session(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(c.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for _, sub := range c.cfg.Subscribes {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	done := make(chan struct{})
	defer close(done)

	writeErr := make(chan error, 1)
	go c.writer(conn, done, writeErr)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		case err := <-writeErr:
			return err
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.closed() {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(data)
	}
}

// writer is the only goroutine that writes frames on the live connection.
func (c *Conn) writer(conn *websocket.Conn, done <-chan struct{}, errCh chan<- error) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.stopCh:
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case v := <-c.writeCh:
			if err := conn.WriteJSON(v); err != nil {
				errCh <- fmt.Errorf("write: %w", err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				errCh <- fmt.Errorf("ping: %w", err)
				return
			}
		}
	}
}

func (c *Conn) dispatch(data []byte) {
	channel := c.cfg.Channel(data)

	c.subsMu.RLock()
	handlers := make([]Handler, 0, len(c.subs[channel])+len(c.subs["*"]))
	handlers = append(handlers, c.subs[channel]...)
	handlers = append(handlers, c.subs["*"]...)
	c.subsMu.RUnlock()

	for _, h := range handlers {
		h(channel, data)
	}
}

// DefaultChannel extracts a fan-out key from common frame shapes:
// combined-stream {"stream": ...}, {"channel": ...}, or event {"e": ...}.
func DefaultChannel(data []byte) string {
	var probe struct {
		Stream  string `json:"stream"`
		Channel string `json:"channel"`
		Event   string `json:"e"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	switch {
	case probe.Stream != "":
		return probe.Stream
	case probe.Channel != "":
		return probe.Channel
	default:
		return probe.Event
	}
}
