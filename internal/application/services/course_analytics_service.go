package services

import (
	"context"
	"sync"
	"time"

	"github.com/LearnStack/learnstack-go/internal/domain/analytics"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/batch"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/clock"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
)

// viewAccumulator buffers view counts for one course between flushes. The
// distinct-user set resets on every flush, so a user recounts as unique in
// each window but never twice within one.
type viewAccumulator struct {
	views       int64
	uniqueUsers map[string]struct{}
}

// completionAccumulator buffers completion counts for one course.
type completionAccumulator struct {
	completions int64
}

// CourseAnalyticsConfig bounds the accumulators.
type CourseAnalyticsConfig struct {
	// ViewFlushThreshold forces an immediate flush when a course's buffered
	// view count reaches it, regardless of the interval.
	ViewFlushThreshold int
	ViewFlushInterval  time.Duration
	// CompletionFlushThreshold is lower than the view threshold since each
	// completion is higher-value and lower-volume.
	CompletionFlushThreshold int
	CompletionFlushInterval  time.Duration
	NewTicker                clock.TickerFactory
}

// CourseAnalyticsService accumulates per-course counters in memory and
// flushes them into persisted aggregates, and feeds raw telemetry events to
// the batch pipelines. Counters are best-effort: unflushed counts are lost on
// process restart.
type CourseAnalyticsService struct {
	mu          sync.Mutex
	views       map[string]*viewAccumulator
	completions map[string]*completionAccumulator

	repo       analytics.CourseAnalyticsRepository
	pageViews  *batch.Processor[*analytics.PageViewEvent]
	userEvents *batch.Processor[*analytics.UserEvent]

	config CourseAnalyticsConfig
	logger *logging.ChanneledLogger
}

// NewCourseAnalyticsService creates the analytics facade.
func NewCourseAnalyticsService(
	repo analytics.CourseAnalyticsRepository,
	pageViews *batch.Processor[*analytics.PageViewEvent],
	userEvents *batch.Processor[*analytics.UserEvent],
	config CourseAnalyticsConfig,
	logger *logging.ChanneledLogger,
) *CourseAnalyticsService {
	if config.NewTicker == nil {
		config.NewTicker = clock.NewTicker
	}
	return &CourseAnalyticsService{
		views:       make(map[string]*viewAccumulator),
		completions: make(map[string]*completionAccumulator),
		repo:        repo,
		pageViews:   pageViews,
		userEvents:  userEvents,
		config:      config,
		logger:      logger,
	}
}

// Start runs the interval flush loops until ctx is cancelled, then flushes
// whatever remains.
func (s *CourseAnalyticsService) Start(ctx context.Context) {
	viewTicker := s.config.NewTicker(s.config.ViewFlushInterval)
	defer viewTicker.Stop()
	completionTicker := s.config.NewTicker(s.config.CompletionFlushInterval)
	defer completionTicker.Stop()

	s.logger.Analytics().Info("Course analytics service started",
		"viewFlushInterval", s.config.ViewFlushInterval,
		"viewFlushThreshold", s.config.ViewFlushThreshold,
		"completionFlushInterval", s.config.CompletionFlushInterval,
		"completionFlushThreshold", s.config.CompletionFlushThreshold)

	for {
		select {
		case <-ctx.Done():
			s.FlushAll()
			s.logger.Analytics().Info("Course analytics service stopped")
			return
		case <-viewTicker.C():
			s.flushAllViews()
		case <-completionTicker.C():
			s.flushAllCompletions()
		}
	}
}

// TrackCourseView counts one view. A non-empty userID joins the course's
// distinct-user set for the current window. Reaching the view threshold
// flushes that course immediately.
func (s *CourseAnalyticsService) TrackCourseView(courseID, userID string) {
	s.mu.Lock()
	acc, ok := s.views[courseID]
	if !ok {
		acc = &viewAccumulator{uniqueUsers: make(map[string]struct{})}
		s.views[courseID] = acc
	}
	acc.views++
	if userID != "" {
		acc.uniqueUsers[userID] = struct{}{}
	}
	forced := s.config.ViewFlushThreshold > 0 && acc.views >= int64(s.config.ViewFlushThreshold)
	var delta analytics.CourseAnalyticsDelta
	if forced {
		delta = s.takeViewDeltaLocked(courseID, acc)
	}
	s.mu.Unlock()

	if forced {
		go s.flushDelta(courseID, delta)
	}
}

// TrackCourseCompletion counts one completion, flushing immediately at the
// completion threshold.
func (s *CourseAnalyticsService) TrackCourseCompletion(courseID string) {
	s.mu.Lock()
	acc, ok := s.completions[courseID]
	if !ok {
		acc = &completionAccumulator{}
		s.completions[courseID] = acc
	}
	acc.completions++
	forced := s.config.CompletionFlushThreshold > 0 && acc.completions >= int64(s.config.CompletionFlushThreshold)
	var delta analytics.CourseAnalyticsDelta
	if forced {
		delta = s.takeCompletionDeltaLocked(courseID, acc)
	}
	s.mu.Unlock()

	if forced {
		go s.flushDelta(courseID, delta)
	}
}

// RecordPageView queues one page view for batched persistence.
func (s *CourseAnalyticsService) RecordPageView(event *analytics.PageViewEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.pageViews.Add(event)
}

// RecordUserEvent queues one user event for batched persistence.
func (s *CourseAnalyticsService) RecordUserEvent(event *analytics.UserEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.userEvents.Add(event)
}

// GetCourseAnalytics reads the persisted aggregate, folding in any counts
// still buffered in memory.
func (s *CourseAnalyticsService) GetCourseAnalytics(courseID string) (*analytics.CourseAnalytics, error) {
	aggregate, err := s.repo.GetCourseAnalytics(courseID)
	if err != nil {
		return nil, err
	}
	if aggregate == nil {
		aggregate = &analytics.CourseAnalytics{CourseID: courseID}
	}

	s.mu.Lock()
	if acc, ok := s.views[courseID]; ok {
		aggregate.TotalViews += acc.views
		aggregate.UniqueViews += int64(len(acc.uniqueUsers))
	}
	if acc, ok := s.completions[courseID]; ok {
		aggregate.Completions += acc.completions
	}
	s.mu.Unlock()

	return aggregate, nil
}

// FlushAll synchronously flushes every pending accumulator.
func (s *CourseAnalyticsService) FlushAll() {
	s.flushAllViews()
	s.flushAllCompletions()
}

func (s *CourseAnalyticsService) flushAllViews() {
	s.mu.Lock()
	deltas := make(map[string]analytics.CourseAnalyticsDelta)
	for courseID, acc := range s.views {
		if acc.views == 0 {
			continue
		}
		deltas[courseID] = s.takeViewDeltaLocked(courseID, acc)
	}
	s.mu.Unlock()

	for courseID, delta := range deltas {
		s.flushDelta(courseID, delta)
	}
}

func (s *CourseAnalyticsService) flushAllCompletions() {
	s.mu.Lock()
	deltas := make(map[string]analytics.CourseAnalyticsDelta)
	for courseID, acc := range s.completions {
		if acc.completions == 0 {
			continue
		}
		deltas[courseID] = s.takeCompletionDeltaLocked(courseID, acc)
	}
	s.mu.Unlock()

	for courseID, delta := range deltas {
		s.flushDelta(courseID, delta)
	}
}

// takeViewDeltaLocked snapshots and resets one view accumulator. Caller
// holds s.mu; the snapshot-and-reset is atomic with the counting, so a user
// id never spans two windows.
func (s *CourseAnalyticsService) takeViewDeltaLocked(courseID string, acc *viewAccumulator) analytics.CourseAnalyticsDelta {
	delta := analytics.CourseAnalyticsDelta{
		Views:       acc.views,
		UniqueViews: int64(len(acc.uniqueUsers)),
	}
	acc.views = 0
	acc.uniqueUsers = make(map[string]struct{})
	return delta
}

func (s *CourseAnalyticsService) takeCompletionDeltaLocked(courseID string, acc *completionAccumulator) analytics.CourseAnalyticsDelta {
	delta := analytics.CourseAnalyticsDelta{Completions: acc.completions}
	acc.completions = 0
	return delta
}

// flushDelta merges one delta into the persisted aggregate: read, then
// additive update or create. Two concurrent flushes for the same course are
// additive in SQL, so counts merge rather than overwrite. Failures are logged
// only; counter persistence is a best-effort side channel.
func (s *CourseAnalyticsService) flushDelta(courseID string, delta analytics.CourseAnalyticsDelta) {
	aggregate, err := s.repo.GetCourseAnalytics(courseID)
	if err != nil {
		s.logger.Analytics().Error("Failed to read course aggregate for flush",
			"courseId", courseID,
			"error", err.Error())
		return
	}

	if aggregate == nil {
		err = s.repo.CreateCourseAnalytics(&analytics.CourseAnalytics{
			CourseID:    courseID,
			TotalViews:  delta.Views,
			UniqueViews: delta.UniqueViews,
			Completions: delta.Completions,
			LastUpdated: time.Now().UTC(),
		})
	} else {
		err = s.repo.UpdateCourseAnalytics(courseID, delta)
	}
	if err != nil {
		s.logger.Analytics().Error("Failed to flush course aggregate",
			"courseId", courseID,
			"views", delta.Views,
			"uniqueViews", delta.UniqueViews,
			"completions", delta.Completions,
			"error", err.Error())
		return
	}

	s.logger.Analytics().Debug("Course aggregate flushed",
		"courseId", courseID,
		"views", delta.Views,
		"uniqueViews", delta.UniqueViews,
		"completions", delta.Completions)
}
