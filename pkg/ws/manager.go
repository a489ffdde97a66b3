package ws

import (
	"context"
	"fmt"
	"sync"

	"CypherFeed/pkg/logger"
)

// Manager owns a set of named connections and their lifecycles.
type Manager struct {
	l       *logger.Logger
	onState func(name string, s State)

	mu    sync.RWMutex
	conns map[string]*Conn
}

// ManagerOption configures Manager.
type ManagerOption func(*Manager)

// WithStateHook installs a callback invoked on every state transition.
func WithStateHook(fn func(name string, s State)) ManagerOption {
	return func(m *Manager) { m.onState = fn }
}

// NewManager creates an empty connection manager.
func NewManager(l *logger.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{l: l, conns: make(map[string]*Conn)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers a new named connection. It does not dial.
func (m *Manager) Add(cfg ConnConfig) (*Conn, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("ws: connection name required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("ws: connection url required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conns[cfg.Name]; exists {
		return nil, fmt.Errorf("ws: connection %q already registered", cfg.Name)
	}

	c := newConn(cfg, m.stateChanged)
	m.conns[cfg.Name] = c
	return c, nil
}

func (m *Manager) stateChanged(name string, s State) {
	if m.l != nil {
		m.l.Info("ws connection state",
			logger.String("connection", name),
			logger.String("state", s.String()))
	}
	if m.onState != nil {
		m.onState(name, s)
	}
}

// Get returns a connection by name.
func (m *Manager) Get(name string) (*Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[name]
	return c, ok
}

// Subscribe registers a handler on a named connection.
func (m *Manager) Subscribe(name, channel string, h Handler) error {
	c, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("ws: unknown connection %q", name)
	}
	c.Subscribe(channel, h)
	return nil
}

// StartAll starts every registered connection.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, c := range m.conns {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("ws: start %q: %w", name, err)
		}
	}
	return nil
}

// States returns the current state per connection.
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.conns))
	for name, c := range m.conns {
		out[name] = c.State()
	}
	return out
}

// Close stops all connections and waits for their goroutines.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conns {
		_ = c.Close()
	}
	return nil
}
