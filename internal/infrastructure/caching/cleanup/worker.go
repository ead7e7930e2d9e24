// Package cleanup provides the background cache cleanup worker.
package cleanup

import (
	"context"
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/caching/store"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/clock"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
)

// Worker purges expired cache entries on an interval. Entries served
// stale-while-revalidate survive between passes only until the purge reaches
// them, so the interval also bounds how long stale data can linger unused.
type Worker struct {
	cache     *store.QueryCache
	interval  time.Duration
	newTicker clock.TickerFactory
	logger    *logging.ChanneledLogger
}

// NewWorker creates a cleanup worker with an injected ticker factory.
func NewWorker(cache *store.QueryCache, interval time.Duration, newTicker clock.TickerFactory, logger *logging.ChanneledLogger) *Worker {
	if newTicker == nil {
		newTicker = clock.NewTicker
	}
	return &Worker{
		cache:     cache,
		interval:  interval,
		newTicker: newTicker,
		logger:    logger,
	}
}

// Start begins the cleanup routine and blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := w.newTicker(w.interval)
	defer ticker.Stop()

	w.logger.Cache().Info("Cache cleanup worker started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Cache().Info("Cache cleanup worker stopping")
			return
		case <-ticker.C():
			w.performCleanup()
		}
	}
}

func (w *Worker) performCleanup() {
	start := time.Now()
	purged := w.cache.PurgeExpired()

	if purged > 0 {
		w.logger.Cache().Info("Cache cleanup finished",
			"purged", purged,
			"remaining", w.cache.Len(),
			"duration", time.Since(start))
	}
}
