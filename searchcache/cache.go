/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package searchcache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"
)

// Fractions of entries (by LRU order) that are evicted when the corresponding bound is exceeded.
const (
	maxEntriesEvictionFraction = 0.1
	maxMemoryEvictionFraction  = 0.2
)

// Clock provides the current time. It is used by the cache for TTL and recency
// accounting and can be replaced in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type cacheEntry[V any] struct {
	key            string
	value          V
	createdAt      time.Time
	expiresAt      time.Time
	lastAccessedAt time.Time
	hitCount       int64
	sizeBytes      int64
}

// Cache is a bounded TTL cache for values of type V keyed by canonical request fingerprints.
// It is limited independently by the number of entries and by the estimated memory footprint;
// exceeding either bound evicts the least recently accessed entries synchronously inside Set.
// All methods are safe for concurrent use.
type Cache[V any] struct {
	maxEntries     int
	maxMemoryBytes int64
	defaultTTL     time.Duration

	mu          sync.RWMutex
	lruList     *list.List // front is the most recently accessed entry
	entries     map[string]*list.Element
	memoryBytes int64
	hits        int64
	misses      int64

	clock            Clock
	metricsCollector MetricsCollector
}

// Opts represents options for the Cache.
type Opts struct {
	// Clock is a time source used for TTL and recency accounting.
	// The system clock is used if nil.
	Clock Clock
}

// New creates a new Cache with the provided configuration and metrics collector.
// Metrics collector may be nil, in this case metrics will be disabled.
func New[V any](cfg *Config, metricsCollector MetricsCollector) (*Cache[V], error) {
	return NewWithOpts[V](cfg, metricsCollector, Opts{})
}

// NewWithOpts creates a new Cache with the provided configuration, metrics collector, and options.
func NewWithOpts[V any](cfg *Config, metricsCollector MetricsCollector, opts Opts) (*Cache[V], error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	defaultTTL := time.Duration(cfg.DefaultTTL)
	if defaultTTL == 0 {
		defaultTTL = DefaultTTL
	}
	if defaultTTL < 0 {
		return nil, fmt.Errorf("defaultTTL must be greater than 0")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}

	return &Cache[V]{
		maxEntries:       cfg.MaxEntries,
		maxMemoryBytes:   int64(cfg.MaxMemory),
		defaultTTL:       defaultTTL,
		lruList:          list.New(),
		entries:          make(map[string]*list.Element),
		clock:            clock,
		metricsCollector: metricsCollector,
	}, nil
}

// Set inserts or replaces the entry for the key using the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL inserts or replaces the entry for the key with the provided TTL.
// Non-positive TTL falls back to the default one.
// After insertion the cache enforces its entry-count and memory bounds,
// evicting the least recently accessed entries if needed.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	size := estimateEntrySize(key, value)
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry[V])
		c.memoryBytes += size - entry.sizeBytes
		entry.value = value
		entry.createdAt = now
		entry.expiresAt = now.Add(ttl)
		entry.lastAccessedAt = now
		entry.sizeBytes = size
		c.lruList.MoveToFront(elem)
	} else {
		c.entries[key] = c.lruList.PushFront(&cacheEntry[V]{
			key:            key,
			value:          value,
			createdAt:      now,
			expiresAt:      now.Add(ttl),
			lastAccessedAt: now,
			sizeBytes:      size,
		})
		c.memoryBytes += size
	}

	if len(c.entries) > c.maxEntries {
		evicted := c.evictLRUFraction(maxEntriesEvictionFraction)
		c.metricsCollector.AddEvictions(EvictionReasonMaxEntries, evicted)
	}
	if c.maxMemoryBytes > 0 && c.memoryBytes > c.maxMemoryBytes {
		evicted := c.evictLRUFraction(maxMemoryEvictionFraction)
		c.metricsCollector.AddEvictions(EvictionReasonMaxMemory, evicted)
	}

	c.metricsCollector.SetEntriesAmount(len(c.entries))
	c.metricsCollector.SetMemoryUsage(c.memoryBytes)
}

// Get returns the stored value if it is present and unexpired.
// An expired entry is removed on the spot and reported as a miss.
// A hit updates the entry's recency and hit count.
func (c *Cache[V]) Get(key string) (value V, ok bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.entries[key]
	if !found {
		c.misses++
		c.metricsCollector.IncMisses()
		return value, false
	}
	entry := elem.Value.(*cacheEntry[V])
	if !now.Before(entry.expiresAt) {
		c.removeElement(elem)
		c.misses++
		c.metricsCollector.IncMisses()
		c.metricsCollector.AddEvictions(EvictionReasonExpired, 1)
		return value, false
	}
	entry.hitCount++
	entry.lastAccessedAt = now
	c.lruList.MoveToFront(elem)
	c.hits++
	c.metricsCollector.IncHits()
	return entry.value, true
}

// Has reports whether an unexpired entry exists for the key.
// Like Get, it removes the entry if it has expired, but it affects
// neither the hit/miss counters nor the entry's recency.
func (c *Cache[V]) Has(key string) bool {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.entries[key]
	if !found {
		return false
	}
	if !now.Before(elem.Value.(*cacheEntry[V]).expiresAt) {
		c.removeElement(elem)
		c.metricsCollector.AddEvictions(EvictionReasonExpired, 1)
		return false
	}
	return true
}

// Delete removes the entry for the key and reports whether it existed.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.entries[key]
	if !found {
		return false
	}
	c.removeElement(elem)
	c.metricsCollector.SetEntriesAmount(len(c.entries))
	c.metricsCollector.SetMemoryUsage(c.memoryBytes)
	return true
}

// Clear removes all entries and resets the hit/miss counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lruList.Init()
	c.memoryBytes = 0
	c.hits = 0
	c.misses = 0
	c.metricsCollector.SetEntriesAmount(0)
	c.metricsCollector.SetMemoryUsage(0)
}

// Size returns the number of live entries, sweeping expired ones first so the
// result never overcounts.
func (c *Cache[V]) Size() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweep(now)
	return len(c.entries)
}

// Stats is an aggregate view of the cache state.
type Stats struct {
	Entries           int        `json:"entries"`
	Hits              int64      `json:"hits"`
	Misses            int64      `json:"misses"`
	HitRatePercent    float64    `json:"hitRatePercent"`
	MemoryBytes       int64      `json:"memoryBytes"`
	AvgEntrySizeBytes int64      `json:"avgEntrySizeBytes"`
	OldestEntryAt     *time.Time `json:"oldestEntryAt,omitempty"`
	NewestEntryAt     *time.Time `json:"newestEntryAt,omitempty"`
}

// EntryStats is a per-entry row of DetailedStats.
type EntryStats struct {
	Key                 string    `json:"key"`
	AgeSeconds          float64   `json:"ageSeconds"`
	RemainingTTLSeconds float64   `json:"remainingTtlSeconds"`
	HitCount            int64     `json:"hitCount"`
	SizeBytes           int64     `json:"sizeBytes"`
	LastAccessedAt      time.Time `json:"lastAccessedAt"`
}

// DetailedStats is Stats extended with one row per live entry,
// ordered from the most to the least recently accessed.
type DetailedStats struct {
	Stats
	EntriesDetails []EntryStats `json:"entriesDetails"`
}

// Stats returns an aggregate snapshot of the cache state.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats()
}

// DetailedStats returns an aggregate snapshot plus one row per live entry.
// It is intended for operational inspection, not for control flow.
func (c *Cache[V]) DetailedStats() DetailedStats {
	now := c.clock.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	details := make([]EntryStats, 0, len(c.entries))
	for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*cacheEntry[V])
		details = append(details, EntryStats{
			Key:                 entry.key,
			AgeSeconds:          now.Sub(entry.createdAt).Seconds(),
			RemainingTTLSeconds: entry.expiresAt.Sub(now).Seconds(),
			HitCount:            entry.hitCount,
			SizeBytes:           entry.sizeBytes,
			LastAccessedAt:      entry.lastAccessedAt,
		})
	}
	return DetailedStats{Stats: c.stats(), EntriesDetails: details}
}

// RunPeriodicSweep runs a cycle of periodic removal of expired entries.
// It blocks until the context is canceled and is supposed to be run
// as a background worker (see service.PeriodicWorker).
func (c *Cache[V]) RunPeriodicSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.sweep(c.clock.Now())
			c.mu.Unlock()
		}
	}
}

// Sweep removes all expired entries and returns the number of removed ones.
func (c *Cache[V]) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweep(now)
}

func (c *Cache[V]) stats() Stats {
	s := Stats{
		Entries:     len(c.entries),
		Hits:        c.hits,
		Misses:      c.misses,
		MemoryBytes: c.memoryBytes,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRatePercent = float64(c.hits) / float64(total) * 100
	}
	if len(c.entries) > 0 {
		s.AvgEntrySizeBytes = c.memoryBytes / int64(len(c.entries))
		var oldest, newest time.Time
		for _, elem := range c.entries {
			createdAt := elem.Value.(*cacheEntry[V]).createdAt
			if oldest.IsZero() || createdAt.Before(oldest) {
				oldest = createdAt
			}
			if newest.IsZero() || createdAt.After(newest) {
				newest = createdAt
			}
		}
		s.OldestEntryAt = &oldest
		s.NewestEntryAt = &newest
	}
	return s
}

// sweep must be called with the lock held.
func (c *Cache[V]) sweep(now time.Time) int {
	removed := 0
	for _, elem := range c.entries {
		if !now.Before(elem.Value.(*cacheEntry[V]).expiresAt) {
			c.removeElement(elem)
			removed++
		}
	}
	if removed > 0 {
		c.metricsCollector.AddEvictions(EvictionReasonExpired, removed)
		c.metricsCollector.SetEntriesAmount(len(c.entries))
		c.metricsCollector.SetMemoryUsage(c.memoryBytes)
	}
	return removed
}

// evictLRUFraction removes the given fraction (rounded up, at least one)
// of the least recently accessed entries. Must be called with the lock held.
func (c *Cache[V]) evictLRUFraction(fraction float64) int {
	toEvict := int(math.Ceil(float64(len(c.entries)) * fraction))
	if toEvict < 1 {
		toEvict = 1
	}
	evicted := 0
	for i := 0; i < toEvict; i++ {
		elem := c.lruList.Back()
		if elem == nil {
			break
		}
		c.removeElement(elem)
		evicted++
	}
	return evicted
}

// removeElement must be called with the lock held.
func (c *Cache[V]) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry[V])
	c.lruList.Remove(elem)
	delete(c.entries, entry.key)
	c.memoryBytes -= entry.sizeBytes
}

// estimateEntrySize approximates the memory held by a key/value pair as the key length
// plus the serialized value length. A value that cannot be serialized is counted as zero.
func estimateEntrySize[V any](key string, value V) int64 {
	size := int64(len(key))
	if b, err := json.Marshal(value); err == nil {
		size += int64(len(b))
	}
	return size
}
