package analytics

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LearnStack/learnstack-go/internal/domain/analytics"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/persistence/database"
	"github.com/LearnStack/learnstack-go/pkg/config"
)

// SQLCourseAnalyticsRepository maintains per-course aggregate counters.
type SQLCourseAnalyticsRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLCourseAnalyticsRepository creates a new instance of the repository.
func NewSQLCourseAnalyticsRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLCourseAnalyticsRepository {
	return &SQLCourseAnalyticsRepository{
		db:     db,
		logger: logger,
	}
}

// GetCourseAnalytics returns the aggregate for a course, or nil when no
// aggregate row exists yet.
func (r *SQLCourseAnalyticsRepository) GetCourseAnalytics(courseID string) (*analytics.CourseAnalytics, error) {
	const query = `
		SELECT course_id, total_views, unique_views, completions, last_updated
		FROM course_analytics
		WHERE course_id = ?`

	start := time.Now()

	var aggregate analytics.CourseAnalytics
	var lastUpdated string
	err := r.db.QueryRow(query, courseID).Scan(
		&aggregate.CourseID,
		&aggregate.TotalViews,
		&aggregate.UniqueViews,
		&aggregate.Completions,
		&lastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Failed to load course analytics",
			"error", err.Error(),
			"courseId", courseID)
		return nil, fmt.Errorf("failed to load course analytics: %w", err)
	}

	if t, err := time.Parse(sqliteTimeFormat, lastUpdated); err == nil {
		aggregate.LastUpdated = t
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return &aggregate, nil
}

// CreateCourseAnalytics inserts the first aggregate row for a course.
func (r *SQLCourseAnalyticsRepository) CreateCourseAnalytics(aggregate *analytics.CourseAnalytics) error {
	const query = `
		INSERT INTO course_analytics (course_id, total_views, unique_views, completions, last_updated)
		VALUES (?, ?, ?, ?, ?)`

	start := time.Now()
	_, err := r.db.Exec(
		query,
		aggregate.CourseID,
		aggregate.TotalViews,
		aggregate.UniqueViews,
		aggregate.Completions,
		aggregate.LastUpdated.Format(sqliteTimeFormat),
	)
	if err != nil {
		r.logger.Database().Error("Course analytics insert failed",
			"error", err.Error(),
			"courseId", aggregate.CourseID)
		return fmt.Errorf("failed to create course analytics: %w", err)
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return nil
}

// UpdateCourseAnalytics adds the delta onto the existing aggregate row. The
// addition happens in SQL so concurrent flushes never lose counts.
func (r *SQLCourseAnalyticsRepository) UpdateCourseAnalytics(courseID string, delta analytics.CourseAnalyticsDelta) error {
	const query = `
		UPDATE course_analytics
		SET total_views = total_views + ?,
		    unique_views = unique_views + ?,
		    completions = completions + ?,
		    last_updated = ?
		WHERE course_id = ?`

	start := time.Now()
	result, err := r.db.Exec(
		query,
		delta.Views,
		delta.UniqueViews,
		delta.Completions,
		time.Now().UTC().Format(sqliteTimeFormat),
		courseID,
	)
	if err != nil {
		r.logger.Database().Error("Course analytics update failed",
			"error", err.Error(),
			"courseId", courseID)
		return fmt.Errorf("failed to update course analytics: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("failed to update course analytics: no aggregate row for course %s", courseID)
	}

	duration := time.Since(start)
	r.logger.Analytics().Debug("Course analytics updated",
		"courseId", courseID,
		"views", delta.Views,
		"uniqueViews", delta.UniqueViews,
		"completions", delta.Completions,
		"duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return nil
}
