// SPDX-License-Identifier: MIT

// Package cache holds short-lived daemon state: latest snapshot JPEGs per
// stream, the most recent detection payload and device discovery results.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is thread-safe byte storage with per-entry TTL.
type Cache interface {
	// Get retrieves a value. The second result is false when the key is
	// missing or expired.
	Get(key string) ([]byte, bool)
	// Set stores a value with the specified TTL.
	Set(key string, value []byte, ttl time.Duration)
	// Delete removes a value.
	Delete(key string)
	// Clear removes all values.
	Clear()
	// Stats returns cache statistics.
	Stats() Stats
}

// Stats holds cache performance counters, surfaced in /api/status.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Evictions   int64 `json:"evictions"`
	CurrentSize int   `json:"currentSize"`
}

// DefaultMaxEntries bounds the in-memory cache.
const DefaultMaxEntries = 256

type entry struct {
	key        string
	value      []byte
	expiration time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiration)
}

// memoryCache is the default backend: TTL entries with LRU eviction once
// maxEntries is reached.
type memoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	stats      Stats
	janitor    *janitor
}

// NewMemoryCache creates an in-memory cache holding at most maxEntries
// values (0 uses DefaultMaxEntries). A cleanupInterval above zero starts a
// janitor goroutine removing expired entries; call Stop to end it.
func NewMemoryCache(maxEntries int, cleanupInterval time.Duration) Cache {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	c := &memoryCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
	}
	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}
	return c
}

func (c *memoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.entries[key]
	if !found {
		c.stats.Misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if e.expired() {
		c.removeLocked(el)
		c.stats.Misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

func (c *memoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp := time.Now().Add(ttl)
	if el, found := c.entries[key]; found {
		e := el.Value.(*entry)
		e.value = value
		e.expiration = exp
		c.order.MoveToFront(el)
	} else {
		c.entries[key] = c.order.PushFront(&entry{key: key, value: value, expiration: exp})
	}
	c.stats.Sets++

	for len(c.entries) > c.maxEntries {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
		c.stats.Evictions++
	}
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, found := c.entries[key]; found {
		c.removeLocked(el)
	}
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *memoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

func (c *memoryCache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.key)
}

// deleteExpired removes all expired entries and returns how many.
func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, el := range c.entries {
		if el.Value.(*entry).expired() {
			c.removeLocked(el)
			count++
		}
	}
	c.stats.Evictions += int64(count)
	return count
}

// Stop ends the janitor goroutine.
func (c *memoryCache) Stop() {
	if c.janitor != nil {
		c.janitor.stop <- struct{}{}
	}
}

// janitor performs periodic cleanup of expired entries.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(c *memoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

// noOpCache disables caching.
type noOpCache struct{}

// NewNoOpCache creates a cache that stores nothing.
func NewNoOpCache() Cache {
	return &noOpCache{}
}

func (c *noOpCache) Get(string) ([]byte, bool)         { return nil, false }
func (c *noOpCache) Set(string, []byte, time.Duration) {}
func (c *noOpCache) Delete(string)                     {}
func (c *noOpCache) Clear()                            {}
func (c *noOpCache) Stats() Stats                      { return Stats{} }
