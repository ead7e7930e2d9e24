package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/LearnStack/learnstack-go/internal/application/services"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/caching/scheduler"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/persistence/database"
	"github.com/gin-gonic/gin"
)

// CourseHandlers serves course reads through the cached query path.
type CourseHandlers struct {
	query  *services.QueryService
	logger *logging.ChanneledLogger
}

// NewCourseHandlers creates new course read handlers.
func NewCourseHandlers(query *services.QueryService, logger *logging.ChanneledLogger) *CourseHandlers {
	return &CourseHandlers{
		query:  query,
		logger: logger,
	}
}

// ListCourses returns the published course catalog. Interactive path, so the
// fetch schedules at high priority and tolerates a stale entry.
func (h *CourseHandlers) ListCourses(c *gin.Context) {
	rows, err := h.query.CachedQuery(c.Request.Context(), database.Query{
		SQL:  `SELECT id, title, description, created_at FROM courses WHERE published = 1 ORDER BY created_at DESC`,
		Path: c.Request.URL.Path,
		Tags: []string{"courses"},
	}, services.CachedQueryOptions{
		CacheKey:   "courses:list",
		TTL:        5 * time.Minute,
		Priority:   scheduler.PriorityHigh,
		AllowStale: true,
	})
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": rows})
}

// GetCourse returns one course by id.
func (h *CourseHandlers) GetCourse(c *gin.Context) {
	courseID := c.Param("courseId")

	rows, err := h.query.CachedQuery(c.Request.Context(), database.Query{
		SQL:  `SELECT id, title, description, created_at FROM courses WHERE id = ?`,
		Args: []any{courseID},
		Path: c.Request.URL.Path,
		Tags: []string{"courses"},
	}, services.CachedQueryOptions{
		CacheKey:   "courses:" + courseID + ":detail",
		TTL:        5 * time.Minute,
		Priority:   scheduler.PriorityHigh,
		AllowStale: true,
	})
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		return
	}
	c.JSON(http.StatusOK, rows[0])
}

func (h *CourseHandlers) respondQueryError(c *gin.Context, err error) {
	var qe *database.QueryError
	if errors.As(err, &qe) && qe.Retryable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Temporarily unavailable, retry shortly"})
		return
	}
	h.logger.Database().Error("Course query failed",
		"path", c.Request.URL.Path,
		"error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
}
