package cache

import (
	"sync"
	"time"

	"github.com/smallbiznis/revenuepulse/internal/clock"
)

// Cache is a small key/value store whose entries expire by age.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Len() int
}

type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

// TTLCache serves an entry only while now - storedAt < ttl. Every Set drops
// entries that can no longer be served, so distinct keys do not accumulate.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	clock   clock.Clock
	entries map[K]entry[V]
}

func NewTTLCache[K comparable, V any](clk clock.Clock) *TTLCache[K, V] {
	if clk == nil {
		clk = clock.New()
	}
	return &TTLCache[K, V]{
		clock:   clk,
		entries: make(map[K]entry[V]),
	}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.clock.Now().Sub(e.storedAt) >= e.ttl {
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= e.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry[V]{
		value:    value,
		storedAt: now,
		ttl:      ttl,
	}
}

func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
