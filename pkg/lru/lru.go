// Package lru implements a Least Recently Used (LRU) cache with per-entry
// expiry.
//
// An LRU cache evicts the least recently accessed item when at capacity.
// Entries additionally expire a fixed TTL after they were stored, so cached
// lookups of external data are refreshed periodically.
//
// Features:
//   - O(1) Get and Put operations (amortized)
//   - Generic types for key and value
//   - Lazy expiry on access, no background goroutine
//   - Thread-safe via Mutex
//
// Thread Safety: All methods are safe for concurrent access.
package lru

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a generic LRU cache with optional expiry.
//
// Type Parameters:
//   - K: Key type (must be comparable)
//   - V: Value type (any)
type Cache[K comparable, V any] struct {
	capacity int                 // Maximum items before eviction
	ttl      time.Duration       // Entry lifetime (0 = never expires)
	now      func() time.Time    // Clock, replaceable in tests
	mu       sync.Mutex          // Protects all fields
	list     *list.List          // LRU order (front = most recent)
	items    map[K]*list.Element // Key -> list element lookup
}

// entry stores key-value pair in list elements.
type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL expires entries ttl after they were last stored.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an LRU cache with the given capacity.
//
// Parameters:
//   - capacity: Maximum items before eviction (default: 1000 if <= 0)
//   - opts: Expiry and clock options
//
// Returns:
//   - Configured Cache ready for Get/Put
func New[K comparable, V any](capacity int, opts ...Option) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 1000
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, V]{
		capacity: capacity,
		ttl:      o.ttl,
		now:      o.now,
		list:     list.New(),
		items:    make(map[K]*list.Element),
	}
}

// Get retrieves a value by key and moves it to most recently used.
//
// Returns:
//   - Value and true if found and not expired
//   - Zero value and false otherwise (an expired entry is removed)
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}

	e := elem.Value.(*entry[K, V])
	if c.expired(e) {
		c.removeElement(elem)
		return zero, false
	}

	c.list.MoveToFront(elem)
	return e.value, true
}

// Put stores a key-value pair, evicting the LRU item if at capacity.
// Storing an existing key refreshes its expiry.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.expiry()
	if elem, ok := c.items[key]; ok {
		c.list.MoveToFront(elem)
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expiresAt
		return
	}

	elem := c.list.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	for c.list.Len() > c.capacity {
		c.removeElement(c.list.Back())
	}
}

func (c *Cache[K, V]) expiry() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

func (c *Cache[K, V]) removeElement(elem *list.Element) {
	e := elem.Value.(*entry[K, V])
	c.list.Remove(elem)
	delete(c.items, e.key)
}

// Delete removes a key from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the current number of items, expired ones included until they
// are next touched.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// Clear removes all items from the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.list.Init()
	c.items = make(map[K]*list.Element)
}

// Keys returns all live keys in LRU order (most recent first).
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.list.Len())
	for elem := c.list.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry[K, V])
		if !c.expired(e) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Capacity returns the maximum cache size.
func (c *Cache[K, V]) Capacity() int {
	return c.capacity
}
