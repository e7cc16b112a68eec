// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

// Package cache provides a thread-safe in-memory TTL cache.
//
// The session tracker keeps five independent caches (artwork, external IDs,
// resolved media details, session users, preferred server URIs) that differ
// only in value type and timeout, so a single generic type covers all of
// them:
//
//	artwork := cache.New[string](24 * time.Hour)
//	artwork.Set("tmdb:603", url)
//	if url, ok := artwork.Get("tmdb:603"); ok { ... }
//
// Entries are replaced wholesale on refresh; there is no partial update.
package cache

import (
	"sync"
	"time"
)

// entry is a cached value with its expiry deadline.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a thread-safe in-memory cache whose entries expire after a fixed
// duration. A background goroutine sweeps expired entries every cleanup
// interval; expired entries are also removed lazily on Get.
type TTL[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration

	statsMu sync.Mutex
	stats   Stats
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int64
}

// HitRate returns the hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total) * 100.0
}

// cleanupInterval is how often the background sweep runs.
const cleanupInterval = 5 * time.Minute

// New creates a TTL cache whose entries expire after ttl.
// A background cleanup goroutine runs for the cache lifetime.
func New[V any](ttl time.Duration) *TTL[V] {
	c := &TTL[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a value by key. Expired entries count as misses and are
// removed.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		c.recordMiss()
		return zero, false
	}

	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		c.recordMiss()
		c.recordEviction()
		return zero, false
	}

	c.recordHit()
	return e.value, true
}

// Set stores a value with the cache's default TTL, replacing any existing
// entry for the key.
func (c *TTL[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL.
func (c *TTL[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	keys := int64(len(c.entries))
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Keys = keys
	c.statsMu.Unlock()
}

// Delete removes a key. Safe to call for keys that do not exist.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	c.recordEviction()
}

// Clear removes all entries in one map replacement.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	evicted := int64(len(c.entries))
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Evictions += evicted
	c.stats.Keys = 0
	c.statsMu.Unlock()
}

// Len returns the number of entries currently stored, including entries
// that have expired but not yet been swept.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetStats returns a snapshot of the cache counters.
func (c *TTL[V]) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *TTL[V]) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

func (c *TTL[V]) cleanup() {
	now := time.Now()
	c.mu.Lock()
	evicted := int64(0)
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	keys := int64(len(c.entries))
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Evictions += evicted
	c.stats.Keys = keys
	c.statsMu.Unlock()
}

func (c *TTL[V]) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *TTL[V]) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}

func (c *TTL[V]) recordEviction() {
	c.statsMu.Lock()
	c.stats.Evictions++
	c.statsMu.Unlock()
}
