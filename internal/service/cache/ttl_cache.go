package cache

import (
	"sync"
	"time"
)

type ttlEntry struct {
	b   []byte
	exp time.Time
}

// TTLCache is an in-process byte cache used when Redis is disabled.
// Expired entries are dropped lazily on read and swept every minute.
type TTLCache struct {
	mu sync.RWMutex
	m  map[string]ttlEntry
}

func NewTTLCache() *TTLCache {
	c := &TTLCache{m: make(map[string]ttlEntry)}
	go c.sweep()
	return c
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.b, true, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.m[key] = ttlEntry{b: value, exp: exp}
	c.mu.Unlock()
	return nil
}

func (c *TTLCache) sweep() {
	for range time.Tick(time.Minute) {
		now := time.Now()
		c.mu.Lock()
		for k, e := range c.m {
			if !e.exp.IsZero() && now.After(e.exp) {
				delete(c.m, k)
			}
		}
		c.mu.Unlock()
	}
}
