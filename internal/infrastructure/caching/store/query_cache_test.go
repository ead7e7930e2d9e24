package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/caching/types"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
)

func newTestCache(maxEntries int, maxBytes int64) *QueryCache {
	return NewQueryCache(maxEntries, maxBytes, time.Minute, logging.NewTestLogger())
}

func fetchValue(v any) FetchFunc {
	return func(ctx context.Context) (any, error) { return v, nil }
}

func TestMissFetchesAndStores(t *testing.T) {
	cache := newTestCache(10, 0)

	value, err := cache.Get(context.Background(), "courses:list", fetchValue("v1"), types.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "v1" {
		t.Fatalf("got %v, want v1", value)
	}

	// Second read must not invoke the fetch again.
	value, err = cache.Get(context.Background(), "courses:list", func(ctx context.Context) (any, error) {
		t.Fatal("fetch called on fresh hit")
		return nil, nil
	}, types.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "v1" {
		t.Fatalf("got %v, want v1", value)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("stats = %+v, want 1 hit and 1 miss", stats)
	}
}

func TestMissFetchErrorPropagates(t *testing.T) {
	cache := newTestCache(10, 0)
	fetchErr := errors.New("database is locked")

	_, err := cache.Get(context.Background(), "courses:list", func(ctx context.Context) (any, error) {
		return nil, fetchErr
	}, types.Options{})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("got %v, want fetch error", err)
	}
	if cache.Len() != 0 {
		t.Fatal("failed fetch must not store an entry")
	}
}

func TestConcurrentFetchesShareOneFlight(t *testing.T) {
	cache := newTestCache(10, 0)

	var fetches atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		fetches.Add(1)
		<-release
		return "shared", nil
	}

	const goroutines = 20
	var wg sync.WaitGroup
	results := make([]any, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := cache.Get(context.Background(), "hot-key", fetch, types.Options{})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = value
		}(i)
	}

	// Give every goroutine time to reach the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := fetches.Load(); got != 1 {
		t.Fatalf("fetch ran %d times, want 1", got)
	}
	for i, value := range results {
		if value != "shared" {
			t.Fatalf("goroutine %d got %v, want shared", i, value)
		}
	}
}

func TestStaleServedThenRefreshed(t *testing.T) {
	cache := newTestCache(10, 0)

	opts := types.Options{TTL: 20 * time.Millisecond, AllowStale: true}
	if _, err := cache.Get(context.Background(), "courses:list", fetchValue("v1"), opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	// Expired entry with AllowStale: stale value returns immediately while the
	// refresh runs in the background.
	value, err := cache.Get(context.Background(), "courses:list", fetchValue("v2"), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "v1" {
		t.Fatalf("stale read got %v, want v1", value)
	}

	deadline := time.Now().Add(time.Second)
	for {
		value, err = cache.Get(context.Background(), "courses:list", fetchValue("v2"), opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value == "v2" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("refresh never landed, still reading %v", value)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if stats := cache.Stats(); stats.StaleHits == 0 {
		t.Fatalf("stats = %+v, want at least one stale hit", stats)
	}
}

func TestRefreshFailureKeepsStaleEntry(t *testing.T) {
	cache := newTestCache(10, 0)

	opts := types.Options{TTL: 10 * time.Millisecond, AllowStale: true}
	if _, err := cache.Get(context.Background(), "courses:list", fetchValue("v1"), opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	failing := func(ctx context.Context) (any, error) {
		return nil, errors.New("connection reset by peer")
	}

	value, err := cache.Get(context.Background(), "courses:list", failing, opts)
	if err != nil {
		t.Fatalf("stale read must not surface refresh failure, got %v", err)
	}
	if value != "v1" {
		t.Fatalf("got %v, want stale v1", value)
	}

	// The entry must survive the failed refresh and keep serving stale.
	time.Sleep(50 * time.Millisecond)
	value, err = cache.Get(context.Background(), "courses:list", failing, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "v1" {
		t.Fatalf("got %v, want stale v1 after failed refresh", value)
	}
}

func TestEntryCountBound(t *testing.T) {
	cache := newTestCache(3, 0)

	for i := 0; i < 5; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), i, time.Minute)
	}

	if cache.Len() != 3 {
		t.Fatalf("len = %d, want 3", cache.Len())
	}
	// The two oldest inserts are gone.
	for _, key := range []string{"key-0", "key-1"} {
		if n := cache.Invalidate(key); n != 0 {
			t.Fatalf("%s should have been evicted", key)
		}
	}
	if stats := cache.Stats(); stats.Evictions != 2 {
		t.Fatalf("evictions = %d, want 2", stats.Evictions)
	}
}

func TestByteSizeBound(t *testing.T) {
	big := strings.Repeat("x", 1000)
	cache := newTestCache(100, 2500)

	for i := 0; i < 4; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), big, time.Minute)
	}

	if bytes := cache.Bytes(); bytes > 2500 {
		t.Fatalf("bytes = %d, want <= 2500", bytes)
	}
	if cache.Len() >= 4 {
		t.Fatalf("len = %d, expected byte bound to evict", cache.Len())
	}
}

func TestOversizedValueNotStored(t *testing.T) {
	cache := newTestCache(100, 2500)

	cache.Set("small", strings.Repeat("a", 100), time.Minute)

	// A single value bigger than the whole byte budget must be returned to
	// the caller but never held, or the cache would sit over its bound until
	// the next eviction.
	huge := strings.Repeat("x", 5000)
	value, err := cache.Get(context.Background(), "huge", fetchValue(huge), types.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != huge {
		t.Fatal("oversized fetch result must still reach the caller")
	}

	if bytes := cache.Bytes(); bytes > 2500 {
		t.Fatalf("bytes = %d, want <= 2500", bytes)
	}
	if n := cache.Invalidate("huge"); n != 0 {
		t.Fatal("oversized value must not be stored")
	}
	if n := cache.Invalidate("small"); n != 1 {
		t.Fatal("existing entries must survive an oversized store")
	}
}

func TestOversizedUpdateDropsPreviousEntry(t *testing.T) {
	cache := newTestCache(100, 2500)

	cache.Set("courses:list", "v1", time.Minute)
	cache.Set("courses:list", strings.Repeat("x", 5000), time.Minute)

	// The old value is outdated and the new one cannot fit, so the key must
	// be gone rather than serving v1.
	if n := cache.Invalidate("courses:list"); n != 0 {
		t.Fatal("expected entry to be dropped on oversized update")
	}
	if bytes := cache.Bytes(); bytes != 0 {
		t.Fatalf("bytes = %d, want 0", bytes)
	}
}

func TestAccessRefreshesRecency(t *testing.T) {
	cache := newTestCache(3, 0)

	cache.Set("a", 1, time.Minute)
	cache.Set("b", 2, time.Minute)
	cache.Set("c", 3, time.Minute)

	// Touch the oldest entry so "b" becomes the eviction candidate.
	if _, err := cache.Get(context.Background(), "a", fetchValue(1), types.Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache.Set("d", 4, time.Minute)

	if n := cache.Invalidate("b"); n != 0 {
		t.Fatal("expected b to be evicted, not a")
	}
	if n := cache.Invalidate("a"); n != 1 {
		t.Fatal("recently accessed entry must survive eviction")
	}
}

func TestPrefixInvalidation(t *testing.T) {
	cache := newTestCache(10, 0)

	cache.Set("courses:1:detail", "d1", time.Minute)
	cache.Set("courses:1:lessons", "l1", time.Minute)
	cache.Set("courses:2:detail", "d2", time.Minute)
	cache.Set("users:1", "u1", time.Minute)

	if n := cache.Invalidate("courses:1:*"); n != 2 {
		t.Fatalf("invalidated %d entries, want 2", n)
	}
	if cache.Len() != 2 {
		t.Fatalf("len = %d, want 2", cache.Len())
	}
	if n := cache.Invalidate("courses:2:detail"); n != 1 {
		t.Fatal("exact invalidation of surviving key failed")
	}
}

func TestPurgeExpired(t *testing.T) {
	cache := newTestCache(10, 0)

	cache.Set("short", 1, 10*time.Millisecond)
	cache.Set("long", 2, time.Minute)

	time.Sleep(20 * time.Millisecond)

	if n := cache.PurgeExpired(); n != 1 {
		t.Fatalf("purged %d entries, want 1", n)
	}
	if cache.Len() != 1 {
		t.Fatalf("len = %d, want 1", cache.Len())
	}
}
