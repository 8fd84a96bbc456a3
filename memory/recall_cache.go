package memory

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RecallCache caches rendered vector reads. Every vector write bumps the
// generation, and the generation is part of the key, so a cached read never
// outlives a write. Entries also expire after ttl.
//
// A nil *RecallCache is a valid, disabled cache.
type RecallCache struct {
	cache      *ristretto.Cache
	ttl        time.Duration
	generation atomic.Uint64
}

// NewRecallCache creates a cache with the given TTL. A negative ttl returns
// a nil (disabled) cache.
func NewRecallCache(ttl time.Duration) (*RecallCache, error) {
	if ttl < 0 {
		return nil, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,     // ~10x the number of distinct queries we expect to hold
		MaxCost:     1 << 24, // 16 MiB of rendered text
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create recall cache: %w", err)
	}
	return &RecallCache{cache: cache, ttl: ttl}, nil
}

// Lookup returns the cached rendering and the generation the lookup saw.
// Pass that generation to Store so a result computed before a write is
// never stored under the post-write generation.
func (c *RecallCache) Lookup(crew, query string, k int) (string, uint64, bool) {
	if c == nil {
		return "", 0, false
	}
	gen := c.generation.Load()
	v, ok := c.cache.Get(recallKey(gen, crew, query, k))
	if !ok {
		return "", gen, false
	}
	s, ok := v.(string)
	return s, gen, ok
}

// Store caches rendered under generation gen.
func (c *RecallCache) Store(gen uint64, crew, query string, k int, rendered string) {
	if c == nil || gen != c.generation.Load() {
		return
	}
	c.cache.SetWithTTL(recallKey(gen, crew, query, k), rendered, int64(len(rendered))+1, c.ttl)
}

// Invalidate makes every cached entry unreachable.
func (c *RecallCache) Invalidate() {
	if c == nil {
		return
	}
	c.generation.Add(1)
}

// Wait blocks until buffered Store calls are applied.
func (c *RecallCache) Wait() {
	if c == nil {
		return
	}
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *RecallCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}

func recallKey(gen uint64, crew, query string, k int) string {
	return fmt.Sprintf("%d\x00%s\x00%d\x00%s", gen, crew, k, query)
}
