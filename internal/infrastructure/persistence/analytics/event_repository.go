// Package analytics provides the concrete SQL-based implementations
// for telemetry event and course aggregate persistence.
//
// PURPOSE: Store page views and user events as the batch pipelines flush
// them, and maintain per-course aggregate counters.
package analytics

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LearnStack/learnstack-go/internal/domain/analytics"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/persistence/database"
	"github.com/LearnStack/learnstack-go/pkg/config"
	"github.com/oklog/ulid/v2"
)

const sqliteTimeFormat = "2006-01-02 15:04:05"

// SQLEventRepository handles telemetry event persistence to database.
type SQLEventRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLEventRepository creates a new instance of the repository.
func NewSQLEventRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLEventRepository {
	return &SQLEventRepository{
		db:     db,
		logger: logger,
	}
}

// CreatePageView saves a single page view event to the database.
func (r *SQLEventRepository) CreatePageView(event *analytics.PageViewEvent) error {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}

	const query = `
		INSERT INTO page_views (id, path, user_id, session_id, referrer, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err := r.db.Exec(
		query,
		event.ID,
		event.Path,
		nullable(event.UserID),
		event.SessionID,
		nullable(event.Referrer),
		event.Duration,
		event.CreatedAt.Format(sqliteTimeFormat),
	)
	if err != nil {
		r.logger.Database().Error("Page view insert failed",
			"error", err.Error(),
			"eventId", event.ID,
			"path", event.Path)
		return fmt.Errorf("failed to store page view: %w", err)
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return nil
}

// CreateUserEvent saves a single user event to the database.
func (r *SQLEventRepository) CreateUserEvent(event *analytics.UserEvent) error {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}

	metadata, err := marshalMetadata(event.Metadata)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO user_events (id, user_id, event_type, object_id, object_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err = r.db.Exec(
		query,
		event.ID,
		event.UserID,
		event.EventType,
		event.ObjectID,
		event.ObjectType,
		metadata,
		event.CreatedAt.Format(sqliteTimeFormat),
	)
	if err != nil {
		r.logger.Database().Error("User event insert failed",
			"error", err.Error(),
			"eventId", event.ID,
			"eventType", event.EventType,
			"objectId", event.ObjectID)
		return fmt.Errorf("failed to store user event: %w", err)
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return nil
}

// CreatePageViews saves a batch of page view events in a single multi-row
// insert inside one transaction, so a mid-batch failure leaves nothing behind
// and the batching layer can requeue the whole batch.
func (r *SQLEventRepository) CreatePageViews(events []*analytics.PageViewEvent) error {
	if len(events) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*7)
	for _, event := range events {
		if event.ID == "" {
			event.ID = ulid.Make().String()
		}
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			event.ID,
			event.Path,
			nullable(event.UserID),
			event.SessionID,
			nullable(event.Referrer),
			event.Duration,
			event.CreatedAt.Format(sqliteTimeFormat),
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO page_views (id, path, user_id, session_id, referrer, duration, created_at)
		VALUES %s`, strings.Join(placeholders, ", "))

	start := time.Now()
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin page view batch: %w", err)
	}

	if _, err := tx.Exec(query, args...); err != nil {
		tx.Rollback()
		r.logger.Database().Error("Page view batch insert failed",
			"error", err.Error(),
			"batchSize", len(events))
		return fmt.Errorf("failed to store page view batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page view batch: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Page view batch insert completed",
		"batchSize", len(events),
		"duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery("INSERT INTO page_views (batch)", duration, "system")
	}
	return nil
}

// CreateUserEvents saves a batch of user events in a single transaction.
func (r *SQLEventRepository) CreateUserEvents(events []*analytics.UserEvent) error {
	if len(events) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*7)
	for _, event := range events {
		if event.ID == "" {
			event.ID = ulid.Make().String()
		}
		metadata, err := marshalMetadata(event.Metadata)
		if err != nil {
			return err
		}
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			event.ID,
			event.UserID,
			event.EventType,
			event.ObjectID,
			event.ObjectType,
			metadata,
			event.CreatedAt.Format(sqliteTimeFormat),
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO user_events (id, user_id, event_type, object_id, object_type, metadata, created_at)
		VALUES %s`, strings.Join(placeholders, ", "))

	start := time.Now()
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin user event batch: %w", err)
	}

	if _, err := tx.Exec(query, args...); err != nil {
		tx.Rollback()
		r.logger.Database().Error("User event batch insert failed",
			"error", err.Error(),
			"batchSize", len(events))
		return fmt.Errorf("failed to store user event batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user event batch: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("User event batch insert completed",
		"batchSize", len(events),
		"duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery("INSERT INTO user_events (batch)", duration, "system")
	}
	return nil
}

// nullable maps an empty string to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalMetadata(metadata map[string]string) (any, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event metadata: %w", err)
	}
	return string(raw), nil
}
