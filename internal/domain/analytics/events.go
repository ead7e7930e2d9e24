// Package analytics defines the telemetry event types and persistence
// contracts consumed by the batching and counter pipelines.
package analytics

import "time"

// PageViewEvent captures one page view for later aggregation.
type PageViewEvent struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	UserID    string    `json:"userId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
	Duration  int       `json:"duration,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserEvent captures an arbitrary user interaction (enrollment, lesson
// progress, quiz submission).
type UserEvent struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId"`
	EventType  string            `json:"eventType"`
	ObjectID   string            `json:"objectId,omitempty"`
	ObjectType string            `json:"objectType,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// CourseAnalytics is the persisted per-course aggregate that the counter
// accumulators flush into.
type CourseAnalytics struct {
	CourseID    string    `json:"courseId"`
	TotalViews  int64     `json:"totalViews"`
	UniqueViews int64     `json:"uniqueViews"`
	Completions int64     `json:"completions"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// CourseAnalyticsDelta is an additive update merged into an existing
// aggregate during a counter flush.
type CourseAnalyticsDelta struct {
	Views       int64
	UniqueViews int64
	Completions int64
}
