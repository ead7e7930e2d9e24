package database

import (
	"context"
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/telemetry"
)

// Row is one result row keyed by column name.
type Row = map[string]any

// Query describes a single statement to execute.
type Query struct {
	SQL  string
	Args []any
	Path string   // originating route, attached to telemetry
	Tags []string // free-form labels, attached to telemetry
}

// Executor runs one query and returns its rows.
type Executor interface {
	Execute(ctx context.Context, query Query) ([]Row, error)
}

// RawExecutor issues a single query against the pooled connection with a
// per-call timeout. Every execution, successful or not, reports its duration
// to the slow-query registry, and every failure is classified at this source.
type RawExecutor struct {
	db        *DB
	timeout   time.Duration
	slowQuery *telemetry.Registry
	logger    *logging.ChanneledLogger
}

// NewRawExecutor creates the bottom-most query executor.
func NewRawExecutor(db *DB, timeout time.Duration, slowQuery *telemetry.Registry, logger *logging.ChanneledLogger) *RawExecutor {
	return &RawExecutor{
		db:        db,
		timeout:   timeout,
		slowQuery: slowQuery,
		logger:    logger,
	}
}

// Execute runs the query and scans all rows into generic column maps. The
// timeout releases the client-side resources; the statement may still finish
// server-side.
func (e *RawExecutor) Execute(ctx context.Context, query Query) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		duration := time.Since(start)
		e.slowQuery.Record(query.SQL, duration, query.Path, query.Tags)
		qe := classify("query", err)
		e.logger.Database().Error("Query execution failed",
			"error", err.Error(),
			"kind", qe.Kind.String(),
			"duration", duration)
		return nil, qe
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		e.slowQuery.Record(query.SQL, time.Since(start), query.Path, query.Tags)
		return nil, classify("columns", err)
	}

	var results []Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			e.slowQuery.Record(query.SQL, time.Since(start), query.Path, query.Tags)
			return nil, classify("scan", err)
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
			} else {
				row[column] = values[i]
			}
		}
		results = append(results, row)
	}

	duration := time.Since(start)
	e.slowQuery.Record(query.SQL, duration, query.Path, query.Tags)

	if err := rows.Err(); err != nil {
		return nil, classify("rows", err)
	}

	e.logger.Database().Debug("Query execution completed",
		"rowCount", len(results),
		"duration", duration)

	return results, nil
}
