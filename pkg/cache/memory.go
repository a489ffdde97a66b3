package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"
)

const defaultTTL = 7 * 24 * time.Hour

type memoryItem struct {
	value    interface{}
	expireAt time.Time
	lastUsed time.Time
}

func (i *memoryItem) expired() bool {
	return time.Now().After(i.expireAt)
}

// MemoryCache implements Service with an in-process map and LRU eviction
// once the size cap is reached.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	maxSize int
	janitor *time.Ticker
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		janitor: time.NewTicker(cfg.CleanupInterval),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = defaultTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.items) >= mc.maxSize {
		mc.evictOldest()
	}
	now := time.Now()
	mc.items[key] = &memoryItem{value: value, expireAt: now.Add(expiration), lastUsed: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.items[key]
	if !ok || item.expired() {
		delete(mc.items, key)
		return ErrCacheMiss
	}
	item.lastUsed = time.Now()

	switch d := dest.(type) {
	case *string:
		if s, ok := item.value.(string); ok {
			*d = s
			return nil
		}
		return fmt.Errorf("cached value is %T, not string", item.value)
	case *interface{}:
		*d = item.value
		return nil
	default:
		if assign(dest, item.value) {
			return nil
		}
		// Stored under a different shape (e.g. a map decoded from
		// Redis); fall back to a JSON round-trip into dest.
		b, err := json.Marshal(item.value)
		if err != nil {
			return fmt.Errorf("cached value is %T: %w", item.value, err)
		}
		return json.Unmarshal(b, dest)
	}
}

// assign copies the stored value into dest when their types line up.
func assign(dest, value interface{}) bool {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return false
	}
	sv := reflect.ValueOf(value)
	if !sv.IsValid() || !sv.Type().AssignableTo(rv.Elem().Type()) {
		return false
	}
	rv.Elem().Set(sv)
	return true
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.items, key)
	}
	return nil
}

// DeleteByPattern drops everything; the in-process cache does not index
// by pattern.
func (mc *MemoryCache) DeleteByPattern(_ context.Context, _ string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.items = make(map[string]*memoryItem)
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if item, ok := mc.items[key]; ok && !item.expired() {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) Increment(_ context.Context, key string) (int64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.items[key]
	if !ok || item.expired() {
		now := time.Now()
		mc.items[key] = &memoryItem{value: int64(1), expireAt: now.Add(defaultTTL), lastUsed: now}
		return 1, nil
	}
	n, ok := item.value.(int64)
	if !ok {
		return 0, fmt.Errorf("value is not int64")
	}
	item.value = n + 1
	return n + 1, nil
}

func (mc *MemoryCache) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if item, ok := mc.items[key]; ok {
		item.expireAt = time.Now().Add(expiration)
		return true, nil
	}
	return false, nil
}

func (mc *MemoryCache) MSet(ctx context.Context, values map[string]interface{}, expiration time.Duration) error {
	for key, value := range values {
		if err := mc.Set(ctx, key, value, expiration); err != nil {
			return err
		}
	}
	return nil
}

func (mc *MemoryCache) MGet(_ context.Context, keys ...string) (map[string]string, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	out := make(map[string]string)
	for _, key := range keys {
		if item, ok := mc.items[key]; ok && !item.expired() {
			if s, ok := item.value.(string); ok {
				out[key] = s
			}
		}
	}
	return out, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if item, ok := mc.items[key]; ok && !item.expired() {
		return false, nil
	}
	now := time.Now()
	mc.items[key] = &memoryItem{value: "locked", expireAt: now.Add(ttl), lastUsed: now}
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, item := range mc.items {
		if oldestKey == "" || item.lastUsed.Before(oldest) {
			oldest = item.lastUsed
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}

func (mc *MemoryCache) sweep() {
	for range mc.janitor.C {
		mc.mu.Lock()
		for key, item := range mc.items {
			if item.expired() {
				delete(mc.items, key)
			}
		}
		mc.mu.Unlock()
	}
}

// Close stops the cleanup ticker.
func (mc *MemoryCache) Close() error {
	mc.janitor.Stop()
	return nil
}
