// Package store provides the bounded stale-while-revalidate query cache.
package store

import (
	"container/list"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/caching/types"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// FetchFunc produces the value for a cache key on miss or refresh.
type FetchFunc func(ctx context.Context) (any, error)

// QueryCache is an LRU cache for query results, bounded by both entry count
// and approximate byte size. Expired entries can be served stale while a
// background refresh replaces them, and concurrent fetches for the same key
// collapse into a single flight.
type QueryCache struct {
	mu       sync.Mutex
	ll       *list.List // front = most recently used
	index    map[string]*list.Element
	curBytes int64

	maxEntries int
	maxBytes   int64
	defaultTTL time.Duration

	group  singleflight.Group
	logger *logging.ChanneledLogger

	hits      atomic.Int64
	misses    atomic.Int64
	staleHits atomic.Int64
	evictions atomic.Int64
	refreshes atomic.Int64
}

// NewQueryCache creates a cache bounded by maxEntries and maxBytes.
func NewQueryCache(maxEntries int, maxBytes int64, defaultTTL time.Duration, logger *logging.ChanneledLogger) *QueryCache {
	return &QueryCache{
		ll:         list.New(),
		index:      make(map[string]*list.Element),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Get returns the cached value for key, fetching it when missing. A fresh hit
// returns immediately. An expired entry with AllowStale set returns the stale
// value and refreshes in the background; without AllowStale the caller waits
// on the fetch like a miss. Fetch failures on a miss propagate; failures
// during a background refresh are logged and the stale entry stays.
func (c *QueryCache) Get(ctx context.Context, key string, fetch FetchFunc, opts types.Options) (any, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	start := time.Now()
	now := time.Now().UTC()

	c.mu.Lock()
	if element, ok := c.index[key]; ok {
		entry := element.Value.(*types.Entry)
		if entry.Fresh(now) {
			c.ll.MoveToFront(element)
			value := entry.Value
			c.mu.Unlock()
			c.hits.Inc()
			c.logger.LogCacheOperation("get", key, true, time.Since(start))
			return value, nil
		}
		if opts.AllowStale {
			c.ll.MoveToFront(element)
			value := entry.Value
			c.mu.Unlock()
			c.staleHits.Inc()
			c.logger.LogCacheOperation("get-stale", key, true, time.Since(start))
			go c.refresh(key, fetch, ttl)
			return value, nil
		}
	}
	c.mu.Unlock()

	c.misses.Inc()
	value, err, _ := c.group.Do(key, func() (any, error) {
		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.set(key, fetched, ttl)
		return fetched, nil
	})
	if err != nil {
		c.logger.LogCacheOperation("get", key, false, time.Since(start))
		return nil, err
	}

	c.logger.LogCacheOperation("get", key, false, time.Since(start))
	return value, nil
}

// refresh replaces an expired entry in the background. The fetch runs detached
// from the triggering request's context, and singleflight guarantees one
// refresh per key no matter how many stale reads trigger it.
func (c *QueryCache) refresh(key string, fetch FetchFunc, ttl time.Duration) {
	_, err, _ := c.group.Do("refresh:"+key, func() (any, error) {
		value, err := fetch(context.Background())
		if err != nil {
			return nil, err
		}
		c.set(key, value, ttl)
		return value, nil
	})
	if err != nil {
		// Stale entry stays serveable; next stale read retries the refresh.
		c.logger.Cache().Warn("Background refresh failed, keeping stale entry",
			"key", key,
			"error", err.Error())
		return
	}
	c.refreshes.Inc()
}

// Set stores a value under key with the given TTL, evicting from the LRU tail
// until both bounds hold.
func (c *QueryCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.set(key, value, ttl)
}

func (c *QueryCache) set(key string, value any, ttl time.Duration) {
	size := approximateSize(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxBytes > 0 && size > c.maxBytes {
		// A value larger than the whole byte budget can never fit. The fetch
		// result still goes to the caller, it just stays uncached; any entry
		// previously stored under the key is dropped rather than left stale.
		if element, ok := c.index[key]; ok {
			c.removeElement(element)
		}
		c.logger.Cache().Debug("Value exceeds cache byte bound, not stored",
			"key", key,
			"size", size,
			"maxBytes", c.maxBytes)
		return
	}

	if element, ok := c.index[key]; ok {
		entry := element.Value.(*types.Entry)
		c.curBytes += size - entry.Size
		entry.Value = value
		entry.Size = size
		entry.InsertedAt = time.Now().UTC()
		entry.TTL = ttl
		c.ll.MoveToFront(element)
	} else {
		entry := &types.Entry{
			Key:        key,
			Value:      value,
			Size:       size,
			InsertedAt: time.Now().UTC(),
			TTL:        ttl,
		}
		c.index[key] = c.ll.PushFront(entry)
		c.curBytes += size
	}

	for c.ll.Len() > c.maxEntries || (c.maxBytes > 0 && c.curBytes > c.maxBytes) {
		c.evictOldest()
	}
}

// evictOldest removes the LRU tail entry. Caller holds c.mu.
func (c *QueryCache) evictOldest() {
	element := c.ll.Back()
	if element == nil {
		return
	}
	entry := element.Value.(*types.Entry)
	c.removeElement(element)
	c.evictions.Inc()
	c.logger.Cache().Debug("Evicted cache entry",
		"key", entry.Key,
		"size", entry.Size,
		"entries", c.ll.Len(),
		"bytes", c.curBytes)
}

// removeElement unlinks one entry. Caller holds c.mu.
func (c *QueryCache) removeElement(element *list.Element) {
	entry := element.Value.(*types.Entry)
	c.ll.Remove(element)
	delete(c.index, entry.Key)
	c.curBytes -= entry.Size
}

// Invalidate removes the entry for keyOrPrefix. A trailing '*' deletes every
// key with the given prefix. Returns the number of entries removed.
func (c *QueryCache) Invalidate(keyOrPrefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.HasSuffix(keyOrPrefix, "*") {
		element, ok := c.index[keyOrPrefix]
		if !ok {
			return 0
		}
		c.removeElement(element)
		return 1
	}

	prefix := strings.TrimSuffix(keyOrPrefix, "*")
	var matched []*list.Element
	for key, element := range c.index {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, element)
		}
	}
	for _, element := range matched {
		c.removeElement(element)
	}
	if len(matched) > 0 {
		c.logger.Cache().Info("Invalidated cache entries by prefix",
			"prefix", prefix,
			"count", len(matched))
	}
	return len(matched)
}

// Clear removes every entry.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.index = make(map[string]*list.Element)
	c.curBytes = 0
}

// PurgeExpired removes entries past their TTL and returns how many were
// removed. Stale-while-revalidate only serves entries that survive between
// purge passes.
func (c *QueryCache) PurgeExpired() int {
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*list.Element
	for element := c.ll.Back(); element != nil; element = element.Prev() {
		if !element.Value.(*types.Entry).Fresh(now) {
			expired = append(expired, element)
		}
	}
	for _, element := range expired {
		c.removeElement(element)
	}
	return len(expired)
}

// Len returns the current entry count.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Bytes returns the current approximate byte total.
func (c *QueryCache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// Stats returns a snapshot of the cache counters.
func (c *QueryCache) Stats() types.Stats {
	c.mu.Lock()
	entries := c.ll.Len()
	bytes := c.curBytes
	c.mu.Unlock()

	return types.Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		StaleHits: c.staleHits.Load(),
		Evictions: c.evictions.Load(),
		Refreshes: c.refreshes.Load(),
		Entries:   entries,
		Bytes:     bytes,
	}
}

// approximateSize estimates the in-memory footprint of a value by its
// JSON-serialized length. Values that fail to marshal count a flat minimum so
// the byte bound still moves.
func approximateSize(value any) int64 {
	raw, err := json.Marshal(value)
	if err != nil {
		return 64
	}
	return int64(len(raw))
}
