// Package handlers provides HTTP handlers for the presentation layer.
package handlers

import (
	"net/http"
	"time"

	"github.com/LearnStack/learnstack-go/internal/application/services"
	"github.com/LearnStack/learnstack-go/internal/domain/analytics"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// AnalyticsHandlers handles telemetry ingest and course analytics endpoints.
type AnalyticsHandlers struct {
	courseAnalytics *services.CourseAnalyticsService
	logger          *logging.ChanneledLogger
}

// NewAnalyticsHandlers creates new analytics handlers.
func NewAnalyticsHandlers(courseAnalytics *services.CourseAnalyticsService, logger *logging.ChanneledLogger) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		courseAnalytics: courseAnalytics,
		logger:          logger,
	}
}

type eventRequest struct {
	Type       string            `json:"type" binding:"required"`
	Path       string            `json:"path"`
	UserID     string            `json:"userId"`
	SessionID  string            `json:"sessionId"`
	Referrer   string            `json:"referrer"`
	Duration   int               `json:"duration"`
	EventType  string            `json:"eventType"`
	ObjectID   string            `json:"objectId"`
	ObjectType string            `json:"objectType"`
	Metadata   map[string]string `json:"metadata"`
}

// PostEvents ingests a batch of telemetry events. Events are queued for
// batched persistence; the request never waits on the database.
func (h *AnalyticsHandlers) PostEvents(c *gin.Context) {
	var request struct {
		Events []eventRequest `json:"events" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	accepted := 0
	now := time.Now().UTC()
	for _, event := range request.Events {
		switch event.Type {
		case "pageView":
			h.courseAnalytics.RecordPageView(&analytics.PageViewEvent{
				Path:      event.Path,
				UserID:    event.UserID,
				SessionID: event.SessionID,
				Referrer:  event.Referrer,
				Duration:  event.Duration,
				CreatedAt: now,
			})
			accepted++
		case "userEvent":
			if event.EventType == "" || event.ObjectID == "" {
				continue
			}
			h.courseAnalytics.RecordUserEvent(&analytics.UserEvent{
				UserID:     event.UserID,
				EventType:  event.EventType,
				ObjectID:   event.ObjectID,
				ObjectType: event.ObjectType,
				Metadata:   event.Metadata,
				CreatedAt:  now,
			})
			accepted++
		default:
			h.logger.Analytics().Warn("Dropping event of unknown type", "type", event.Type)
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

// PostCourseView counts one course view.
func (h *AnalyticsHandlers) PostCourseView(c *gin.Context) {
	courseID := c.Param("courseId")
	if courseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing course id"})
		return
	}

	var request struct {
		UserID string `json:"userId"`
	}
	// Body is optional; anonymous views carry no user id.
	_ = c.ShouldBindJSON(&request)

	h.courseAnalytics.TrackCourseView(courseID, request.UserID)
	c.JSON(http.StatusAccepted, gin.H{"tracked": true})
}

// PostCourseCompletion counts one course completion.
func (h *AnalyticsHandlers) PostCourseCompletion(c *gin.Context) {
	courseID := c.Param("courseId")
	if courseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing course id"})
		return
	}

	h.courseAnalytics.TrackCourseCompletion(courseID)
	c.JSON(http.StatusAccepted, gin.H{"tracked": true})
}

// GetCourseAnalytics returns the aggregate for one course, including counts
// still buffered in memory.
func (h *AnalyticsHandlers) GetCourseAnalytics(c *gin.Context) {
	courseID := c.Param("courseId")
	aggregate, err := h.courseAnalytics.GetCourseAnalytics(courseID)
	if err != nil {
		h.logger.Analytics().Error("Failed to load course analytics",
			"courseId", courseID,
			"error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load course analytics"})
		return
	}
	c.JSON(http.StatusOK, aggregate)
}
