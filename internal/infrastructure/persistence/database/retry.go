package database

import (
	"context"
	"errors"
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"github.com/sony/gobreaker"
)

// RetryOptions bounds one retrying execution.
type RetryOptions struct {
	MaxRetries   int           // total attempts, not additional ones
	InitialDelay time.Duration // first backoff delay, doubled each attempt
	Timeout      time.Duration // overall budget across attempts and waits
}

// RetryExecutor wraps an Executor with classified-error retry, exponential
// backoff, and a circuit breaker. Transient failures are retried until the
// attempt or time budget runs out; fatal failures propagate immediately.
type RetryExecutor struct {
	next    Executor
	breaker *gobreaker.CircuitBreaker
	logger  *logging.ChanneledLogger
}

// NewRetryExecutor creates a retrying executor over next.
func NewRetryExecutor(next Executor, logger *logging.ChanneledLogger) *RetryExecutor {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "database",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Alert().Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return &RetryExecutor{
		next:    next,
		breaker: breaker,
		logger:  logger,
	}
}

// Execute runs the query with retry. The backoff delay starts at
// InitialDelay and doubles per attempt; when the elapsed time plus the next
// delay would exceed the overall Timeout budget, it gives up early with the
// last error.
func (e *RetryExecutor) Execute(ctx context.Context, query Query) ([]Row, error) {
	return e.ExecuteWithOptions(ctx, query, RetryOptions{})
}

// ExecuteWithOptions runs the query with explicit retry bounds. Zero-valued
// options fall back to sane minimums.
func (e *RetryExecutor) ExecuteWithOptions(ctx context.Context, query Query, opts RetryOptions) ([]Row, error) {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	start := time.Now()
	delay := opts.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		rows, err := e.executeThroughBreaker(ctx, query)
		if err == nil {
			if attempt > 1 {
				e.logger.Database().Info("Query succeeded after retry",
					"attempt", attempt,
					"elapsed", time.Since(start))
			}
			return rows, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}

		if attempt == opts.MaxRetries {
			break
		}

		if time.Since(start)+delay > opts.Timeout {
			e.logger.Database().Warn("Retry budget exhausted, giving up early",
				"attempt", attempt,
				"elapsed", time.Since(start),
				"nextDelay", delay,
				"budget", opts.Timeout)
			return nil, lastErr
		}

		e.logger.Database().Warn("Transient query failure, backing off",
			"attempt", attempt,
			"delay", delay,
			"error", err.Error())

		select {
		case <-ctx.Done():
			return nil, classify("retry", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, lastErr
}

// executeThroughBreaker routes the call through the circuit breaker. An open
// breaker surfaces as a transient unavailability so callers back off rather
// than hammering a failing database.
func (e *RetryExecutor) executeThroughBreaker(ctx context.Context, query Query) ([]Row, error) {
	result, err := e.breaker.Execute(func() (any, error) {
		return e.next.Execute(ctx, query)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &QueryError{Kind: KindUnavailable, Op: "breaker", Err: err}
		}
		return nil, err
	}
	rows, _ := result.([]Row)
	return rows, nil
}
