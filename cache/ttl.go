// Package cache holds report results for a fixed time-to-live.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value   any
	expires time.Time
}

// TTL is a key/value cache whose entries expire after a fixed duration.
// Concurrent misses for the same key share a single load.
type TTL struct {
	ttl time.Duration
	now func() time.Time

	mu         sync.Mutex
	entries    map[string]entry
	generation uint64

	group singleflight.Group
}

// New creates a TTL cache. A non-positive ttl disables storage; loads are still coalesced.
func New(ttl time.Duration) *TTL {
	return &TTL{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Get returns the cached value for key if present and not expired.
func (c *TTL) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Invalidate drops every entry. Loads that started before the call do not repopulate the cache.
func (c *TTL) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.generation++
}

// Len returns the number of stored entries, expired or not.
func (c *TTL) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTL) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *TTL) store(key string, generation uint64, value any) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	c.entries[key] = entry{value: value, expires: c.now().Add(c.ttl)}
}

// Fetch returns the cached value for key, calling load on a miss. Errors are not cached.
// Concurrent misses share one load, which runs detached from the caller's cancellation.
func Fetch[T any](ctx context.Context, c *TTL, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	generation := c.currentGeneration()
	v, err, _ := c.group.Do(fmt.Sprintf("%d/%s", generation, key), func() (any, error) {
		value, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(key, generation, value)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
