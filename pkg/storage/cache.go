package storage

import (
	"container/list"
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/tomgoth/hrv-dashboard/pkg/types"
)

// CacheObserver is notified about cache lookups
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

// QueryKey identifies a range query
type QueryKey struct {
	Metric string
	Start  time.Time
	End    time.Time
}

// QueryCache implements an LRU cache for range query results
type QueryCache struct {
	capacity int
	ttl      time.Duration
	mu       sync.Mutex
	cache    map[string]*cacheEntry
	lru      *list.List
}

// cacheEntry represents a cached query result
type cacheEntry struct {
	key       string
	result    types.Series
	timestamp time.Time
	element   *list.Element
}

// NewQueryCache creates a new query cache
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[string]*cacheEntry),
		lru:      list.New(),
	}
}

// Get retrieves a cached query result
func (qc *QueryCache) Get(q QueryKey) (types.Series, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	key := generateCacheKey(q)
	entry, exists := qc.cache[key]
	if !exists {
		return types.Series{}, false
	}

	if time.Since(entry.timestamp) > qc.ttl {
		qc.removeLocked(key)
		return types.Series{}, false
	}

	qc.lru.MoveToFront(entry.element)
	return entry.result, true
}

// Put stores a query result in the cache
func (qc *QueryCache) Put(q QueryKey, result types.Series) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	key := generateCacheKey(q)

	if entry, exists := qc.cache[key]; exists {
		entry.result = result
		entry.timestamp = time.Now()
		qc.lru.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{
		key:       key,
		result:    result,
		timestamp: time.Now(),
	}
	entry.element = qc.lru.PushFront(entry)
	qc.cache[key] = entry

	// Evict least recently used entry if cache is full
	if qc.lru.Len() > qc.capacity {
		if oldest := qc.lru.Back(); oldest != nil {
			qc.removeLocked(oldest.Value.(*cacheEntry).key)
		}
	}
}

// removeLocked removes an entry from the cache (must hold lock)
func (qc *QueryCache) removeLocked(key string) {
	if entry, exists := qc.cache[key]; exists {
		qc.lru.Remove(entry.element)
		delete(qc.cache, key)
	}
}

// Clear clears all cache entries
func (qc *QueryCache) Clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.cache = make(map[string]*cacheEntry)
	qc.lru = list.New()
}

// Size returns the current cache size
func (qc *QueryCache) Size() int {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return len(qc.cache)
}

// Stats returns cache statistics
func (qc *QueryCache) Stats() CacheStats {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	expired := 0
	for _, entry := range qc.cache {
		if time.Since(entry.timestamp) > qc.ttl {
			expired++
		}
	}

	return CacheStats{
		Size:     len(qc.cache),
		Capacity: qc.capacity,
		Expired:  expired,
	}
}

// CacheStats contains cache statistics
type CacheStats struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
	Expired  int `json:"expired"`
}

// generateCacheKey derives a fixed-size key from the query parameters
func generateCacheKey(q QueryKey) string {
	raw := fmt.Sprintf("%s\x00%d\x00%d", q.Metric, q.Start.UnixNano(), q.End.UnixNano())
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}

// CachedStorage wraps a storage with range query caching
type CachedStorage struct {
	Storage
	cache  *QueryCache
	obs    CacheObserver
	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// NewCachedStorage creates a cached storage wrapper
func NewCachedStorage(storage Storage, cacheCapacity int, cacheTTL time.Duration, obs CacheObserver) *CachedStorage {
	return &CachedStorage{
		Storage: storage,
		cache:   NewQueryCache(cacheCapacity, cacheTTL),
		obs:     obs,
	}
}

// Write invalidates the cache and passes through to the underlying storage
func (cs *CachedStorage) Write(ctx context.Context, series types.Series) error {
	cs.cache.Clear()
	return cs.Storage.Write(ctx, series)
}

// Query checks the cache before querying storage
func (cs *CachedStorage) Query(ctx context.Context, metric string, start, end time.Time) (types.Series, error) {
	key := QueryKey{Metric: metric, Start: start, End: end}

	if result, ok := cs.cache.Get(key); ok {
		cs.record(true)
		return result, nil
	}
	cs.record(false)

	result, err := cs.Storage.Query(ctx, metric, start, end)
	if err != nil {
		return types.Series{}, err
	}

	cs.cache.Put(key, result)
	return result, nil
}

func (cs *CachedStorage) record(hit bool) {
	cs.mu.Lock()
	if hit {
		cs.hits++
	} else {
		cs.misses++
	}
	cs.mu.Unlock()

	if cs.obs == nil {
		return
	}
	if hit {
		cs.obs.CacheHit()
	} else {
		cs.obs.CacheMiss()
	}
}

// CacheStats returns cache statistics with the hit and miss counters
func (cs *CachedStorage) CacheStats() (CacheStats, uint64, uint64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.cache.Stats(), cs.hits, cs.misses
}

// CacheHitRate returns the cache hit rate as a percentage
func (cs *CachedStorage) CacheHitRate() float64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	total := cs.hits + cs.misses
	if total == 0 {
		return 0.0
	}

	return float64(cs.hits) / float64(total) * 100.0
}
