// Package cache implements the in-process read-through caches backing entity
// reads, and the coordinator that invalidates them on writes.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Stats receives hit/miss notifications, typically wired to prometheus.
type Stats interface {
	Hit(cache string)
	Miss(cache string)
}

type item[V any] struct {
	value   V
	expires time.Time
}

// Cache is a TTL-bounded cache for one kind of value. An entry is either
// absent or present; expiry is observed lazily at access time and an expired
// entry counts as absent. The mutex guards only the maps and is never held
// while a loader is in flight.
type Cache[V any] struct {
	name  string
	ttl   time.Duration
	stats Stats

	group singleflight.Group

	mu      sync.RWMutex
	items   map[string]item[V]
	gens    map[string]uint64
	cleared uint64
}

// New constructs a named cache. stats may be nil.
func New[V any](name string, ttl time.Duration, stats Stats) *Cache[V] {
	return &Cache[V]{
		name:  name,
		ttl:   ttl,
		stats: stats,
		items: make(map[string]item[V]),
		gens:  make(map[string]uint64),
	}
}

// Name identifies the cache in invalidation wiring and metrics.
func (c *Cache[V]) Name() string { return c.name }

// Get returns the cached value when present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if time.Now().After(it.expires) {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && time.Now().After(cur.expires) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return it.value, true
}

// GetOrLoad returns the cached value, or runs loader through a singleflight
// group so concurrent callers of one key share a single load. Only successful
// loads populate the cache; loader errors are returned and never cached. The
// caller's ctx can abandon the wait; the flight itself still completes.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, loader func(context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		if c.stats != nil {
			c.stats.Hit(c.name)
		}
		return v, nil
	}
	if c.stats != nil {
		c.stats.Miss(c.name)
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// A previous flight may have repopulated the key between our miss
		// and this flight starting.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		gen, cleared := c.snapshot(key)
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, v, gen, cleared)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Evict removes a single entry regardless of TTL. Evicting an absent key is
// a no-op apart from advancing the generation guard.
func (c *Cache[V]) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	c.gens[key]++
}

// Clear drops every entry at once.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item[V])
	c.gens = make(map[string]uint64)
	c.cleared++
}

// Len reports the number of resident entries, including not-yet-collected
// expired ones.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[V]) snapshot(key string) (gen, cleared uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[key], c.cleared
}

// store writes a loaded value unless an Evict or Clear moved the generation
// while the loader was in flight; a value loaded before the mutation must
// not outlive it.
func (c *Cache[V]) store(key string, v V, gen, cleared uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen || c.cleared != cleared {
		return
	}
	c.items[key] = item[V]{value: v, expires: time.Now().Add(c.ttl)}
}
