// Package pricecache is the shared price cache (C3): a single TTL
// cache with single-flight coalescing so concurrent strategy scans
// asking for the same price in the same instant trigger one fetch, not
// one per caller. Grounded on the teacher's request-coalescing idiom in
// internal/rpc (one in-flight request per endpoint) generalized here to
// one in-flight request per cache key.
package pricecache

import (
	"context"
	"sync"
	"time"

	"github.com/wnt/soltrader/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves a fresh price for key. Implementations typically
// wrap an HTTP client to a price feed or DEX aggregator.
type Fetcher func(ctx context.Context, key string) (float64, error)

type entry struct {
	value     float64
	fetchedAt time.Time
}

// Cache is a TTL-bounded, single-flight-coalesced price cache.
type Cache struct {
	fetch Fetcher
	ttl   time.Duration

	mutex sync.RWMutex
	data  map[string]entry

	group singleflight.Group
}

// New builds a Cache that calls fetch on miss and caches results for ttl.
func New(fetch Fetcher, ttl time.Duration) *Cache {
	return &Cache{
		fetch: fetch,
		ttl:   ttl,
		data:  make(map[string]entry),
	}
}

// Get returns the price for key, serving from cache when fresh and
// coalescing concurrent misses for the same key into a single fetch.
func (c *Cache) Get(ctx context.Context, key string) (float64, error) {
	if v, ok := c.fresh(key); ok {
		metrics.RecordPriceCacheOutcome("hit")
		return v, nil
	}

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		v, err := c.fetch(ctx, key)
		if err != nil {
			return 0.0, err
		}
		c.mutex.Lock()
		c.data[key] = entry{value: v, fetchedAt: time.Now()}
		c.mutex.Unlock()
		return v, nil
	})

	if err != nil {
		metrics.RecordPriceCacheOutcome("miss")
		return 0, err
	}
	if shared {
		metrics.RecordPriceCacheOutcome("coalesced")
	} else {
		metrics.RecordPriceCacheOutcome("miss")
	}
	return result.(float64), nil
}

func (c *Cache) fresh(key string) (float64, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	e, ok := c.data[key]
	if !ok || time.Since(e.fetchedAt) > c.ttl {
		return 0, false
	}
	return e.value, true
}

// Invalidate drops a cached key, forcing the next Get to refetch.
func (c *Cache) Invalidate(key string) {
	c.mutex.Lock()
	delete(c.data, key)
	c.mutex.Unlock()
}
