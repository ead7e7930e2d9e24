// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/LearnStack/learnstack-go/internal/application/services"
	"github.com/LearnStack/learnstack-go/internal/domain/analytics"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/batch"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/caching/cleanup"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/caching/scheduler"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/caching/store"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/telemetry"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/persistence/database"
	persistence "github.com/LearnStack/learnstack-go/internal/infrastructure/persistence/analytics"
	"github.com/LearnStack/learnstack-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies.
// Everything is wired once at startup; no service reaches for globals.
type Container struct {
	Logger *logging.ChanneledLogger

	// Infrastructure
	DB            *database.DB
	SlowQuery     *telemetry.Registry
	QueryCache    *store.QueryCache
	Scheduler     *scheduler.Scheduler
	CleanupWorker *cleanup.Worker

	// Batch pipelines
	PageViewPipeline  *batch.Processor[*analytics.PageViewEvent]
	UserEventPipeline *batch.Processor[*analytics.UserEvent]

	// Repositories
	EventRepo  analytics.EventRepository
	CourseRepo analytics.CourseAnalyticsRepository

	// Application services
	QueryService           *services.QueryService
	CourseAnalyticsService *services.CourseAnalyticsService
	SysOpService           *services.SysOpService
}

// NewContainer creates and wires all singleton services.
func NewContainer(logger *logging.ChanneledLogger) (*Container, error) {
	db, err := database.NewConnection(config.DBDriver, config.DBDataSource, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	slowQuery := telemetry.NewRegistry(config.SlowQueryThreshold, config.SlowQueryMaxRecords, logger)
	rawExecutor := database.NewRawExecutor(db, config.QueryTimeout, slowQuery, logger)
	retryExecutor := database.NewRetryExecutor(rawExecutor, logger)

	queryCache := store.NewQueryCache(config.CacheMaxEntries, config.CacheMaxBytes, config.CacheDefaultTTL, logger)
	sched := scheduler.NewScheduler(logger)
	cleanupWorker := cleanup.NewWorker(queryCache, config.CacheCleanupInterval, nil, logger)

	eventRepo := persistence.NewSQLEventRepository(db, logger)
	courseRepo := persistence.NewSQLCourseAnalyticsRepository(db, logger)

	pageViewPipeline := batch.NewProcessor(batch.Config[*analytics.PageViewEvent]{
		Name:               "page-views",
		MaxBatchSize:       config.EventBatchSize,
		ProcessingInterval: config.EventBatchInterval,
		MinItemsToProcess:  config.EventBatchMinItems,
		Process:            eventRepo.CreatePageViews,
	}, logger)

	userEventPipeline := batch.NewProcessor(batch.Config[*analytics.UserEvent]{
		Name:               "user-events",
		MaxBatchSize:       config.EventBatchSize,
		ProcessingInterval: config.EventBatchInterval,
		MinItemsToProcess:  config.EventBatchMinItems,
		Process:            eventRepo.CreateUserEvents,
	}, logger)

	courseAnalytics := services.NewCourseAnalyticsService(courseRepo, pageViewPipeline, userEventPipeline,
		services.CourseAnalyticsConfig{
			ViewFlushThreshold:       config.ViewFlushThreshold,
			ViewFlushInterval:        config.ViewFlushInterval,
			CompletionFlushThreshold: config.CompletionFlushThreshold,
			CompletionFlushInterval:  config.CompletionFlushInterval,
		}, logger)

	return &Container{
		Logger:        logger,
		DB:            db,
		SlowQuery:     slowQuery,
		QueryCache:    queryCache,
		Scheduler:     sched,
		CleanupWorker: cleanupWorker,

		PageViewPipeline:  pageViewPipeline,
		UserEventPipeline: userEventPipeline,

		EventRepo:  eventRepo,
		CourseRepo: courseRepo,

		QueryService:           services.NewQueryService(queryCache, sched, retryExecutor, slowQuery, logger),
		CourseAnalyticsService: courseAnalytics,
		SysOpService:           services.NewSysOpService(db, logger),
	}, nil
}

// Close releases the container's long-lived resources.
func (c *Container) Close() error {
	if err := c.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
