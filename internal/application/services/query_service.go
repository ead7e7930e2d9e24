// Package services provides the application-layer facades over the caching,
// scheduling, retry, and telemetry infrastructure.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/caching/scheduler"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/caching/store"
	cachetypes "github.com/LearnStack/learnstack-go/internal/infrastructure/caching/types"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/telemetry"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/persistence/database"
	"github.com/LearnStack/learnstack-go/pkg/config"
)

// CachedQueryOptions controls one cached query execution.
type CachedQueryOptions struct {
	// CacheKey overrides the derived key. Prefix-style keys ("courses:1:…")
	// make targeted invalidation possible.
	CacheKey string
	// TTL for the cached result; zero uses the cache default.
	TTL time.Duration
	// Priority tiers the fetch through the scheduler. Defaults to normal.
	Priority scheduler.Priority
	// AllowStale serves an expired entry immediately and refreshes it in the
	// background.
	AllowStale bool
	// BypassCache executes directly, skipping both read and store.
	BypassCache bool
	// Tags are attached to slow-query telemetry.
	Tags []string
}

// QueryService is the facade handlers use for database reads. Reads flow
// scheduler → cache → retry executor → raw executor.
type QueryService struct {
	cache     *store.QueryCache
	scheduler *scheduler.Scheduler
	executor  *database.RetryExecutor
	slowQuery *telemetry.Registry
	logger    *logging.ChanneledLogger
}

// NewQueryService creates the query facade.
func NewQueryService(
	cache *store.QueryCache,
	sched *scheduler.Scheduler,
	executor *database.RetryExecutor,
	slowQuery *telemetry.Registry,
	logger *logging.ChanneledLogger,
) *QueryService {
	return &QueryService{
		cache:     cache,
		scheduler: sched,
		executor:  executor,
		slowQuery: slowQuery,
		logger:    logger,
	}
}

type queryResult struct {
	rows []database.Row
	err  error
}

// CachedQuery executes a read through the priority scheduler and the query
// cache. Concurrent calls for the same key share one database fetch.
func (s *QueryService) CachedQuery(ctx context.Context, query database.Query, opts CachedQueryOptions) ([]database.Row, error) {
	if opts.BypassCache {
		return s.executor.Execute(ctx, query)
	}

	key := opts.CacheKey
	if key == "" {
		key = deriveCacheKey(query)
	}

	fetch := func(fetchCtx context.Context) (any, error) {
		return s.executor.Execute(fetchCtx, query)
	}

	// The scheduler orders only the decision to start each lookup; the lookup
	// itself runs in its own goroutine so fetches for distinct keys stay
	// concurrent and a slow query never stalls the drain loop.
	resultCh := make(chan queryResult, 1)
	s.scheduler.Enqueue(func() {
		go func() {
			value, err := s.cache.Get(ctx, key, fetch, cachetypes.Options{
				TTL:        opts.TTL,
				AllowStale: opts.AllowStale,
			})
			if err != nil {
				resultCh <- queryResult{err: err}
				return
			}
			rows, ok := value.([]database.Row)
			if !ok {
				resultCh <- queryResult{err: fmt.Errorf("failed to read cache entry %s: unexpected value type %T", key, value)}
				return
			}
			resultCh <- queryResult{rows: rows}
		}()
	}, opts.Priority)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		return result.rows, result.err
	}
}

// RetryableQuery executes a read through the retry executor without caching.
func (s *QueryService) RetryableQuery(ctx context.Context, query database.Query, opts database.RetryOptions) ([]database.Row, error) {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = config.RetryMaxAttempts
	}
	if opts.InitialDelay == 0 {
		opts.InitialDelay = config.RetryInitialDelay
	}
	if opts.Timeout == 0 {
		opts.Timeout = config.RetryTimeout
	}
	return s.executor.ExecuteWithOptions(ctx, query, opts)
}

// ClearQueryCache removes the entry for keyOrPrefix (trailing '*' clears by
// prefix). An empty argument clears everything. Returns entries removed, or
// -1 for a full clear.
func (s *QueryService) ClearQueryCache(keyOrPrefix string) int {
	if keyOrPrefix == "" || keyOrPrefix == "*" {
		s.cache.Clear()
		s.logger.Cache().Info("Query cache cleared")
		return -1
	}
	return s.cache.Invalidate(keyOrPrefix)
}

// SlowQueryStats returns the slow-query records sorted by impact.
func (s *QueryService) SlowQueryStats() []telemetry.SlowQueryRecord {
	return s.slowQuery.Stats()
}

// CacheStats returns a snapshot of the cache counters.
func (s *QueryService) CacheStats() cachetypes.Stats {
	return s.cache.Stats()
}

// SchedulerStats returns the per-tier queue depths.
func (s *QueryService) SchedulerStats() map[string]int {
	return s.scheduler.QueueLengths()
}

// deriveCacheKey hashes the statement and its arguments so parameterized
// variants cache independently.
func deriveCacheKey(query database.Query) string {
	h := sha256.New()
	h.Write([]byte(query.SQL))
	for _, arg := range query.Args {
		fmt.Fprintf(h, "|%v", arg)
	}
	return "query:" + hex.EncodeToString(h.Sum(nil))[:16]
}
