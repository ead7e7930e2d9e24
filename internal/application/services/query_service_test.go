package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/caching/scheduler"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/caching/store"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/telemetry"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/persistence/database"
)

// countingExecutor serves a fixed result and counts executions.
type countingExecutor struct {
	executions atomic.Int32
	rows       []database.Row
}

func (e *countingExecutor) Execute(ctx context.Context, query database.Query) ([]database.Row, error) {
	e.executions.Add(1)
	return e.rows, nil
}

func newTestQueryService(inner database.Executor) *QueryService {
	logger := logging.NewTestLogger()
	return NewQueryService(
		store.NewQueryCache(100, 0, time.Minute, logger),
		scheduler.NewScheduler(logger),
		database.NewRetryExecutor(inner, logger),
		telemetry.NewRegistry(150*time.Millisecond, 50, logger),
		logger,
	)
}

func TestCachedQueryHitsCacheOnSecondRead(t *testing.T) {
	inner := &countingExecutor{rows: []database.Row{{"id": "c-1", "title": "Intro to Go"}}}
	service := newTestQueryService(inner)

	query := database.Query{SQL: "SELECT id, title FROM courses", Path: "/api/v1/courses"}
	opts := CachedQueryOptions{CacheKey: "courses:list", Priority: scheduler.PriorityHigh}

	for i := 0; i < 3; i++ {
		rows, err := service.CachedQuery(context.Background(), query, opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rows) != 1 || rows[0]["id"] != "c-1" {
			t.Fatalf("rows = %v", rows)
		}
	}

	if got := inner.executions.Load(); got != 1 {
		t.Fatalf("executor ran %d times, want 1", got)
	}

	stats := service.CacheStats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Fatalf("cache stats = %+v, want 2 hits and 1 miss", stats)
	}
}

func TestCachedQueryDerivesDistinctKeysPerArgs(t *testing.T) {
	inner := &countingExecutor{rows: []database.Row{{"n": 1}}}
	service := newTestQueryService(inner)

	base := database.Query{SQL: "SELECT * FROM courses WHERE id = ?"}
	for _, arg := range []any{"c-1", "c-2", "c-1"} {
		query := base
		query.Args = []any{arg}
		if _, err := service.CachedQuery(context.Background(), query, CachedQueryOptions{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// c-1 repeats, so only two distinct fetches.
	if got := inner.executions.Load(); got != 2 {
		t.Fatalf("executor ran %d times, want 2", got)
	}
}

func TestBypassCacheSkipsReadAndStore(t *testing.T) {
	inner := &countingExecutor{rows: []database.Row{{"n": 1}}}
	service := newTestQueryService(inner)

	query := database.Query{SQL: "SELECT 1"}
	opts := CachedQueryOptions{CacheKey: "bypass-me", BypassCache: true}

	for i := 0; i < 2; i++ {
		if _, err := service.CachedQuery(context.Background(), query, opts); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := inner.executions.Load(); got != 2 {
		t.Fatalf("executor ran %d times, want 2 with cache bypassed", got)
	}
	if stats := service.CacheStats(); stats.Entries != 0 {
		t.Fatal("bypass must not populate the cache")
	}
}

func TestConcurrentCachedQueriesShareOneFetch(t *testing.T) {
	inner := &countingExecutor{rows: []database.Row{{"n": 1}}}
	service := newTestQueryService(inner)

	query := database.Query{SQL: "SELECT * FROM courses"}
	opts := CachedQueryOptions{CacheKey: "courses:list", Priority: scheduler.PriorityHigh}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.CachedQuery(context.Background(), query, opts); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// Stampede collapses to at most a handful of fetches; after the first
	// completes every later call is a hit. The common case is exactly one.
	if got := inner.executions.Load(); got > 2 {
		t.Fatalf("executor ran %d times under concurrent load", got)
	}
}

func TestClearQueryCacheByPrefix(t *testing.T) {
	inner := &countingExecutor{rows: []database.Row{{"n": 1}}}
	service := newTestQueryService(inner)

	for _, key := range []string{"courses:1", "courses:2", "users:1"} {
		if _, err := service.CachedQuery(context.Background(), database.Query{SQL: "SELECT 1"}, CachedQueryOptions{CacheKey: key}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if removed := service.ClearQueryCache("courses:*"); removed != 2 {
		t.Fatalf("removed %d entries, want 2", removed)
	}
	if stats := service.CacheStats(); stats.Entries != 1 {
		t.Fatalf("entries = %d, want users:1 to survive", stats.Entries)
	}

	if removed := service.ClearQueryCache(""); removed != -1 {
		t.Fatal("empty argument must clear everything")
	}
	if stats := service.CacheStats(); stats.Entries != 0 {
		t.Fatal("cache not empty after full clear")
	}
}
