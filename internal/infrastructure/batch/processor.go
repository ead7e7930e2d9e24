// Package batch provides the generic size-and-time triggered batch pipeline
// used for telemetry persistence.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/clock"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"go.uber.org/atomic"
)

// Config configures one batch pipeline.
type Config[T any] struct {
	// Name identifies the pipeline in logs.
	Name string
	// MaxBatchSize is the flush trigger on Add and the cap per batch.
	MaxBatchSize int
	// ProcessingInterval is how often the timer considers a flush.
	ProcessingInterval time.Duration
	// MinItemsToProcess gates timer-driven flushes; size-triggered and
	// explicit flushes ignore it.
	MinItemsToProcess int
	// Process persists one batch. On error the batch is requeued at the
	// front, preserving order.
	Process func(items []T) error
	// NewTicker defaults to the real clock.
	NewTicker clock.TickerFactory
}

// Processor accumulates items and flushes them by size or time trigger.
// Failed batches are re-prepended in order and retried on the next cycle;
// nothing is dropped, so a persistently failing Process grows the queue
// without bound. Growth past the warning watermark is logged.
type Processor[T any] struct {
	mu    sync.Mutex
	queue []T

	// flushMu serializes flushes so a timer flush and a size-triggered flush
	// cannot interleave and reorder batches.
	flushMu sync.Mutex

	config    Config[T]
	processed atomic.Int64
	warned    atomic.Bool
	logger    *logging.ChanneledLogger
}

// NewProcessor creates an idle pipeline. Call Start to run the timer.
func NewProcessor[T any](config Config[T], logger *logging.ChanneledLogger) *Processor[T] {
	if config.NewTicker == nil {
		config.NewTicker = clock.NewTicker
	}
	if config.MaxBatchSize < 1 {
		config.MaxBatchSize = 1
	}
	return &Processor[T]{
		config: config,
		logger: logger,
	}
}

// Start runs the interval timer until ctx is cancelled. A tick flushes one
// batch when at least MinItemsToProcess items are queued.
func (p *Processor[T]) Start(ctx context.Context) {
	ticker := p.config.NewTicker(p.config.ProcessingInterval)
	defer ticker.Stop()

	p.logger.Analytics().Info("Batch processor started",
		"name", p.config.Name,
		"maxBatchSize", p.config.MaxBatchSize,
		"interval", p.config.ProcessingInterval,
		"minItems", p.config.MinItemsToProcess)

	for {
		select {
		case <-ctx.Done():
			// Final drain so queued telemetry survives a graceful shutdown.
			p.ProcessNow()
			p.logger.Analytics().Info("Batch processor stopped",
				"name", p.config.Name,
				"processed", p.processed.Load(),
				"remaining", p.QueueLength())
			return
		case <-ticker.C():
			if p.QueueLength() >= p.config.MinItemsToProcess {
				p.flush()
			}
		}
	}
}

// Add queues one item. Reaching MaxBatchSize flushes immediately instead of
// waiting for the timer.
func (p *Processor[T]) Add(item T) {
	p.mu.Lock()
	p.queue = append(p.queue, item)
	full := len(p.queue) >= p.config.MaxBatchSize
	p.mu.Unlock()

	if full {
		p.flush()
	}
}

// ProcessNow flushes one batch regardless of MinItemsToProcess.
func (p *Processor[T]) ProcessNow() {
	p.flush()
}

// QueueLength returns the number of queued items.
func (p *Processor[T]) QueueLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// ProcessedCount returns the total items successfully processed.
func (p *Processor[T]) ProcessedCount() int64 {
	return p.processed.Load()
}

// flush removes up to MaxBatchSize items from the front and hands them to the
// process func. On failure the batch goes back to the front in order.
func (p *Processor[T]) flush() {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return
	}
	n := len(p.queue)
	if n > p.config.MaxBatchSize {
		n = p.config.MaxBatchSize
	}
	batch := make([]T, n)
	copy(batch, p.queue[:n])
	p.queue = append(p.queue[:0:0], p.queue[n:]...)
	p.mu.Unlock()

	start := time.Now()
	if err := p.config.Process(batch); err != nil {
		p.mu.Lock()
		p.queue = append(batch, p.queue...)
		depth := len(p.queue)
		p.mu.Unlock()

		p.logger.Analytics().Error("Batch processing failed, requeued at front",
			"name", p.config.Name,
			"batchSize", len(batch),
			"queueDepth", depth,
			"error", err.Error())
		p.warnOnGrowth(depth)
		return
	}

	p.processed.Add(int64(len(batch)))
	p.warned.Store(false)
	p.logger.Analytics().Debug("Batch processed",
		"name", p.config.Name,
		"batchSize", len(batch),
		"duration", time.Since(start))
}

// warnOnGrowth raises one alert when the queue keeps growing past the
// watermark, resetting after the next successful flush.
func (p *Processor[T]) warnOnGrowth(depth int) {
	watermark := p.config.MaxBatchSize * 3
	if depth > watermark && p.warned.CompareAndSwap(false, true) {
		p.logger.Alert().Warn("Batch queue growing unboundedly",
			"name", p.config.Name,
			"queueDepth", depth,
			"watermark", watermark)
	}
}
