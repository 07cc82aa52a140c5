// Package cache provides the process-wide response cache for generated
// answers.
//
// The cache maps a prompt fingerprint to a previously generated response
// and guarantees single-flight computation: at most one compute runs per
// key at a time, and every concurrent caller for that key receives the one
// in-flight result or error. Duplicate concurrent calls to the model are
// pure waste of cost and quota, which is the whole reason this package
// exists.
//
// Entries expire after a TTL and the map is bounded with LRU eviction.
// Failures are never cached.
package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ragline/ragline/internal/prompt"
)

// Defaults applied by New for zero values.
const (
	DefaultTTL      = 15 * time.Minute
	DefaultCapacity = 1024
)

// Cache is a bounded TTL cache with single-flight de-duplication.
// The internal map is the only cross-session mutable state in the system;
// all mutation goes through GetOrCompute.
//
// Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	ttl      time.Duration // 0 = entries never expire
	capacity int
	logger   *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	entries map[prompt.Key]*list.Element
	lru     *list.List // front = most recently used
}

type entry struct {
	key       prompt.Key
	value     string
	expiresAt time.Time // zero = no expiry
}

// Config configures a Cache. Zero values select the defaults; a negative
// TTL disables expiry.
type Config struct {
	TTL      time.Duration
	Capacity int
	Logger   *slog.Logger
}

// New creates a Cache.
func New(cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		logger:   logger,
		entries:  make(map[prompt.Key]*list.Element),
		lru:      list.New(),
	}
}

// GetOrCompute returns the cached value for key, or runs compute to produce
// it. hit reports whether the caller was served without triggering a new
// computation (a fresh entry, or joining another caller's in-flight one).
//
// Guarantees:
//   - at most one compute runs per key at a time, process-wide;
//   - every concurrent caller for a key gets that one compute's result or
//     error;
//   - a compute error is returned to all waiters and nothing is cached;
//   - an expired entry is treated as a miss and replaced by the recompute.
//
// compute runs with the context of the caller that started the flight;
// if that caller is cancelled mid-compute, joined callers see the
// cancellation error too, and the next request simply recomputes.
func (c *Cache) GetOrCompute(ctx context.Context, key prompt.Key, compute func(context.Context) (string, error)) (value string, hit bool, err error) {
	if v, ok := c.lookup(key); ok {
		return v, true, nil
	}

	type flightResult struct {
		value     string
		fromCache bool
	}
	v, err, shared := c.group.Do(string(key), func() (any, error) {
		// Double-check after winning the flight: another flight may have
		// populated the entry between our miss and now.
		if v, ok := c.lookup(key); ok {
			return flightResult{value: v, fromCache: true}, nil
		}
		result, err := compute(ctx)
		if err != nil {
			return flightResult{}, err // never cache failures
		}
		c.store(key, result)
		return flightResult{value: result}, nil
	})
	if err != nil {
		return "", false, err
	}
	fr := v.(flightResult)
	return fr.value, shared || fr.fromCache, nil
}

// lookup returns a fresh cached value, promoting it in the LRU order.
// Expired entries are removed and reported as a miss.
func (c *Cache) lookup(key prompt.Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return "", false
	}
	e := elem.Value.(*entry)
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.removeLocked(elem)
		c.logger.Debug("cache entry expired", "key", shortKey(key))
		return "", false
	}
	c.lru.MoveToFront(elem)
	return e.value, true
}

// store inserts or replaces the entry for key and evicts the least
// recently used entry when the capacity bound is exceeded.
func (c *Cache) store(key prompt.Key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.entries[key] = elem

	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.logger.Debug("cache evicted LRU entry", "key", shortKey(oldest.Value.(*entry).key))
	}
}

// removeLocked removes elem from both the map and the LRU list.
// Caller holds c.mu.
func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.entries, e.key)
	c.lru.Remove(elem)
}

// Len returns the number of cached entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// shortKey trims a fingerprint for log lines.
func shortKey(k prompt.Key) string {
	if len(k) <= 12 {
		return string(k)
	}
	return string(k[:12])
}
