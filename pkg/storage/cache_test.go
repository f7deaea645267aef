package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tomgoth/hrv-dashboard/pkg/types"
)

func testKey(metric string) QueryKey {
	end := time.Date(2026, time.May, 6, 8, 0, 0, 0, time.UTC)
	return QueryKey{Metric: metric, Start: end.AddDate(0, 0, -7), End: end}
}

func TestQueryCache(t *testing.T) {
	cache := NewQueryCache(100, time.Minute)
	key := testKey("rmssd")

	if _, ok := cache.Get(key); ok {
		t.Error("Expected cache miss, got hit")
	}

	result := types.Series{
		Metric:  "rmssd",
		Samples: []types.Sample{{Timestamp: key.End.Add(-time.Hour), Value: 42.0}},
	}
	cache.Put(key, result)

	cached, ok := cache.Get(key)
	if !ok {
		t.Fatal("Expected cache hit, got miss")
	}
	if len(cached.Samples) != 1 || cached.Samples[0].Value != 42.0 {
		t.Errorf("Unexpected cached result %+v", cached)
	}

	other := key
	other.End = other.End.Add(time.Millisecond)
	if _, ok := cache.Get(other); ok {
		t.Error("Expected a different range to miss")
	}
}

func TestQueryCacheTTL(t *testing.T) {
	cache := NewQueryCache(100, 100*time.Millisecond)
	key := testKey("rmssd")

	cache.Put(key, types.Series{})

	if _, ok := cache.Get(key); !ok {
		t.Error("Expected cache hit")
	}

	time.Sleep(150 * time.Millisecond)

	if _, ok := cache.Get(key); ok {
		t.Error("Expected cache miss after TTL expiry")
	}
}

func TestQueryCacheLRUEviction(t *testing.T) {
	cache := NewQueryCache(3, time.Minute)

	for i := 0; i < 4; i++ {
		cache.Put(testKey(fmt.Sprintf("metric_%d", i)), types.Series{})
	}

	if cache.Size() != 3 {
		t.Errorf("Expected cache size 3, got %d", cache.Size())
	}
	if _, ok := cache.Get(testKey("metric_0")); ok {
		t.Error("Expected metric_0 to be evicted")
	}
	if _, ok := cache.Get(testKey("metric_3")); !ok {
		t.Error("Expected metric_3 to be in cache")
	}
}

func TestCacheStats(t *testing.T) {
	cache := NewQueryCache(100, time.Minute)

	if stats := cache.Stats(); stats.Size != 0 {
		t.Errorf("Expected initial size 0, got %d", stats.Size)
	}

	for i := 0; i < 10; i++ {
		cache.Put(testKey(fmt.Sprintf("metric_%d", i)), types.Series{})
	}

	stats := cache.Stats()
	if stats.Size != 10 {
		t.Errorf("Expected size 10, got %d", stats.Size)
	}
	if stats.Capacity != 100 {
		t.Errorf("Expected capacity 100, got %d", stats.Capacity)
	}
}

type countingObserver struct {
	hits, misses int
}

func (o *countingObserver) CacheHit()  { o.hits++ }
func (o *countingObserver) CacheMiss() { o.misses++ }

func TestCachedStorage(t *testing.T) {
	obs := &countingObserver{}
	cs := NewCachedStorage(newTestStorage(t, 24*time.Hour), 10, time.Minute, obs)
	ctx := context.Background()
	now := time.Date(2026, time.May, 6, 8, 0, 0, 0, time.UTC)

	if err := cs.Write(ctx, rmssdSeries(now)); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	start := now.AddDate(0, 0, -7)
	for i := 0; i < 3; i++ {
		result, err := cs.Query(ctx, "rmssd", start, now)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(result.Samples) != 4 {
			t.Errorf("Expected 4 samples, got %d", len(result.Samples))
		}
	}

	_, hits, misses := cs.CacheStats()
	if hits != 2 || misses != 1 {
		t.Errorf("Expected 2 hits and 1 miss, got %d/%d", hits, misses)
	}
	if obs.hits != 2 || obs.misses != 1 {
		t.Errorf("Observer saw %d hits and %d misses", obs.hits, obs.misses)
	}
	if rate := cs.CacheHitRate(); rate < 66 || rate > 67 {
		t.Errorf("Expected hit rate ~66.7%%, got %f", rate)
	}

	// Writing invalidates cached ranges
	replacement := types.Series{Metric: "rmssd", Samples: []types.Sample{{Timestamp: now.Add(-time.Hour), Value: 70}}}
	if err := cs.Write(ctx, replacement); err != nil {
		t.Fatalf("Failed to rewrite: %v", err)
	}
	result, err := cs.Query(ctx, "rmssd", start, now)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(result.Samples) != 1 {
		t.Errorf("Expected fresh result with 1 sample, got %d", len(result.Samples))
	}
}
