package analytics

// EventRepository persists telemetry events. Implementations are
// fire-and-forget from the caller's perspective; failures surface only to the
// batching layer, which requeues the batch.
type EventRepository interface {
	CreatePageView(event *PageViewEvent) error
	CreateUserEvent(event *UserEvent) error

	// Batch variants used by the batch pipelines to amortize insert cost.
	CreatePageViews(events []*PageViewEvent) error
	CreateUserEvents(events []*UserEvent) error
}

// CourseAnalyticsRepository persists per-course aggregates.
type CourseAnalyticsRepository interface {
	// GetCourseAnalytics returns the aggregate for a course, or nil when no
	// aggregate exists yet.
	GetCourseAnalytics(courseID string) (*CourseAnalytics, error)
	CreateCourseAnalytics(aggregate *CourseAnalytics) error
	UpdateCourseAnalytics(courseID string, delta CourseAnalyticsDelta) error
}
