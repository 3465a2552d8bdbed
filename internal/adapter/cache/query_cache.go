package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"agrirec/internal/domain"
)

// QueryCache is an LRU cache of ranked results with a TTL. Entries are tagged
// with the corpus generation they were computed against and dropped once
// the corpus moves on.
type QueryCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	order      []string
	maxSize    int
	ttl        time.Duration
	generation uint64
	now        func() time.Time
}

type cacheEntry struct {
	results    []domain.ScoredItem
	timestamp  time.Time
	generation uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key derives the cache key from everything that influences ranking.
func Key(q domain.Query, topK int) string {
	parts := []string{
		q.Text(),
		num(q.PriceNum),
		num(q.QuantityNum),
		num(q.Latitude),
		num(q.Longitude),
		strconv.Itoa(topK),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:16])
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (c *QueryCache) Get(key string) ([]domain.ScoredItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	if c.now().Sub(entry.timestamp) > c.ttl || entry.generation != c.generation {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	c.moveToEnd(key)
	return clone(entry.results), true
}

// Put stores results computed against generation. Results from a stale
// generation are ignored.
func (c *QueryCache) Put(key string, generation uint64, results []domain.ScoredItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}

	entry := &cacheEntry{
		results:    clone(results),
		timestamp:  c.now(),
		generation: generation,
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

// Invalidate drops every entry and moves the cache to generation.
func (c *QueryCache) Invalidate(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	c.generation = generation
}

func (c *QueryCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func (c *QueryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest removes the least recently used live entry, skipping order
// keys that no longer have one.
func (c *QueryCache) evictOldest() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; ok {
			delete(c.entries, oldest)
			return
		}
	}
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func clone(results []domain.ScoredItem) []domain.ScoredItem {
	if results == nil {
		return nil
	}
	out := make([]domain.ScoredItem, len(results))
	copy(out, results)
	return out
}
