// Package cache maps normalized script text to compiled units. Keys are
// bucketed by a 64-bit metro hash fingerprint and compared in full, so a
// fingerprint collision can never return the wrong unit.
package cache

import (
	"sync"
	"time"

	metro "github.com/dgryski/go-metro"
)

// Config bounds the cache. The zero value is unbounded with no expiry.
type Config struct {
	Size int           // Maximum number of entries; 0 means unbounded
	TTL  time.Duration // Entry lifetime; 0 means forever
}

// Stats reports cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Compiles  int64 // Successful compile callbacks
	Failures  int64 // Failed compile callbacks; failures are never cached
	Evictions int64
	Entries   int
}

type entry[V any] struct {
	key     string
	value   V
	created time.Time
}

// Cache is a concurrency-safe registry keyed by normalized source text.
type Cache[V any] struct {
	mutex   sync.Mutex
	buckets map[uint64][]*entry[V]
	size    int
	config  Config
	stats   Stats
	now     func() time.Time
}

// New returns an empty cache.
func New[V any](config Config) *Cache[V] {
	return &Cache[V]{
		buckets: make(map[uint64][]*entry[V]),
		config:  config,
		now:     time.Now,
	}
}

// Fingerprint returns the bucket hash of key.
func Fingerprint(key string) uint64 {
	return metro.Hash64([]byte(key), 0)
}

// Get returns the value stored under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lookup(key)
}

// Put stores value under key, replacing any previous value.
func (c *Cache[V]) Put(key string, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.store(key, value)
}

// GetOrCompile returns the value stored under key, or calls compile and
// stores its result. The lock is held across compile, so at most one
// compilation runs per key. A failed compile stores nothing.
func (c *Cache[V]) GetOrCompile(key string, compile func() (V, error)) (value V, cached bool, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if v, ok := c.lookup(key); ok {
		return v, true, nil
	}

	v, err := compile()
	if err != nil {
		c.stats.Failures++
		var zero V
		return zero, false, err
	}
	c.stats.Compiles++
	c.store(key, v)
	return v, false, nil
}

// Remove deletes key.
func (c *Cache[V]) Remove(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.remove(key)
}

// Clear drops every entry. Statistics are kept.
func (c *Cache[V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.buckets = make(map[uint64][]*entry[V])
	c.size = 0
}

// Len returns the number of entries.
func (c *Cache[V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.size
}

// Keys returns every stored key.
func (c *Cache[V]) Keys() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	keys := make([]string, 0, c.size)
	for _, bucket := range c.buckets {
		for _, e := range bucket {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Stats returns a copy of the current statistics.
func (c *Cache[V]) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	stats := c.stats
	stats.Entries = c.size
	return stats
}

// lookup finds key (called with lock held)
func (c *Cache[V]) lookup(key string) (V, bool) {
	var zero V
	for _, e := range c.buckets[Fingerprint(key)] {
		if e.key != key {
			continue
		}
		if c.config.TTL > 0 && c.now().Sub(e.created) > c.config.TTL {
			// expired, treat as miss
			c.remove(key)
			c.stats.Evictions++
			break
		}
		c.stats.Hits++
		return e.value, true
	}
	c.stats.Misses++
	return zero, false
}

// store inserts or replaces key (called with lock held)
func (c *Cache[V]) store(key string, value V) {
	fp := Fingerprint(key)
	for _, e := range c.buckets[fp] {
		if e.key == key {
			e.value = value
			e.created = c.now()
			return
		}
	}

	if c.config.Size > 0 && c.size >= c.config.Size {
		c.evictOldest()
	}
	c.buckets[fp] = append(c.buckets[fp], &entry[V]{key: key, value: value, created: c.now()})
	c.size++
}

// remove deletes key (called with lock held)
func (c *Cache[V]) remove(key string) {
	fp := Fingerprint(key)
	bucket := c.buckets[fp]
	for i, e := range bucket {
		if e.key != key {
			continue
		}
		bucket = append(bucket[:i], bucket[i+1:]...)
		if len(bucket) == 0 {
			delete(c.buckets, fp)
		} else {
			c.buckets[fp] = bucket
		}
		c.size--
		return
	}
}

// evictOldest removes the oldest entry (called with lock held)
func (c *Cache[V]) evictOldest() {
	var oldest *entry[V]
	for _, bucket := range c.buckets {
		for _, e := range bucket {
			if oldest == nil || e.created.Before(oldest.created) {
				oldest = e
			}
		}
	}
	if oldest != nil {
		c.remove(oldest.key)
		c.stats.Evictions++
	}
}
