// Package lru is a bounded key/value cache with least-recently-used eviction
// and sliding expiration.
package lru

import (
	"sync"
	"time"
)

// Clock returns the current time. A nil Clock means time.Now.
type Clock func() time.Time

type item[K comparable, V any] struct {
	key     K
	val     V
	touched time.Time
	prev    *item[K, V]
	next    *item[K, V]
}

// Cache holds at most capacity entries. An entry that has not been read or
// written for longer than ttl is treated as absent.
//
// The list is ordered by last touch: head is the most recently used entry and
// tail the least. Only Get and Put touch entries.
type Cache[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	now      Clock

	mu    sync.Mutex
	items map[K]*item[K, V]
	head  *item[K, V]
	tail  *item[K, V]
}

// New returns an empty cache. A capacity <= 0 disables the size bound and a
// ttl <= 0 disables expiration.
func New[K comparable, V any](capacity int, ttl time.Duration, clock Clock) *Cache[K, V] {
	if clock == nil {
		clock = time.Now
	}
	return &Cache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		now:      clock,
		items:    map[K]*item[K, V]{},
	}
}

// Get returns the value stored for key. A hit refreshes both the entry's TTL
// and its recency.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	it, ok := c.items[key]
	if !ok {
		return zero, false
	}
	now := c.now()
	if c.expiredLocked(it, now) {
		c.removeLocked(it)
		return zero, false
	}
	it.touched = now
	c.moveToFront(it)
	return it.val, true
}

// Put stores value for key, marking it most recently used. If the cache grows
// beyond its capacity the least recently used entries are dropped.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if it, ok := c.items[key]; ok {
		it.val = value
		it.touched = now
		c.moveToFront(it)
	} else {
		it := &item[K, V]{key: key, val: value, touched: now}
		c.items[key] = it
		c.addToFront(it)
	}

	for c.capacity > 0 && len(c.items) > c.capacity {
		c.removeLocked(c.tail)
	}
	// the tail is always the oldest touch, so expired entries collect there
	for c.tail != nil && c.tail != c.head && c.expiredLocked(c.tail, now) {
		c.removeLocked(c.tail)
	}
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[key]; ok {
		c.removeLocked(it)
	}
}

// Len reports how many entries are held, including expired entries that have
// not been collected yet.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for c.tail != nil && c.expiredLocked(c.tail, now) {
		c.removeLocked(c.tail)
		n++
	}
	return n
}

// Range calls fn for each live entry from most to least recently used until
// fn returns false. It does not touch the entries it visits. fn must not call
// back into the cache.
func (c *Cache[K, V]) Range(fn func(key K, value V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for it := c.head; it != nil; it = it.next {
		if c.expiredLocked(it, now) {
			continue
		}
		if !fn(it.key, it.val) {
			return
		}
	}
}

// Keys returns the live keys, most recently used first.
func (c *Cache[K, V]) Keys() []K {
	out := make([]K, 0, c.Len())
	c.Range(func(k K, _ V) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Clear removes every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = map[K]*item[K, V]{}
	c.head, c.tail = nil, nil
}

func (c *Cache[K, V]) expiredLocked(it *item[K, V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(it.touched) > c.ttl
}

func (c *Cache[K, V]) removeLocked(it *item[K, V]) {
	c.unlink(it)
	delete(c.items, it.key)
}

func (c *Cache[K, V]) addToFront(it *item[K, V]) {
	it.prev = nil
	it.next = c.head
	if c.head != nil {
		c.head.prev = it
	}
	c.head = it
	if c.tail == nil {
		c.tail = it
	}
}

func (c *Cache[K, V]) unlink(it *item[K, V]) {
	if it.prev != nil {
		it.prev.next = it.next
	} else {
		c.head = it.next
	}
	if it.next != nil {
		it.next.prev = it.prev
	} else {
		c.tail = it.prev
	}
	it.prev, it.next = nil, nil
}

func (c *Cache[K, V]) moveToFront(it *item[K, V]) {
	if c.head == it {
		return
	}
	c.unlink(it)
	c.addToFront(it)
}
