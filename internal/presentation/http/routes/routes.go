// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/LearnStack/learnstack-go/internal/application/container"
	"github.com/LearnStack/learnstack-go/internal/presentation/http/handlers"
	"github.com/LearnStack/learnstack-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	courseHandlers := handlers.NewCourseHandlers(container.QueryService, container.Logger)
	analyticsHandlers := handlers.NewAnalyticsHandlers(container.CourseAnalyticsService, container.Logger)
	sysopHandlers := handlers.NewSysOpHandlers(container.SysOpService, container.QueryService, container.Logger)

	api := r.Group("/api/v1")
	{
		api.GET("/courses", courseHandlers.ListCourses)
		api.GET("/courses/:courseId", courseHandlers.GetCourse)
		api.GET("/courses/:courseId/analytics", analyticsHandlers.GetCourseAnalytics)

		api.POST("/events", analyticsHandlers.PostEvents)
		api.POST("/courses/:courseId/view", analyticsHandlers.PostCourseView)
		api.POST("/courses/:courseId/complete", analyticsHandlers.PostCourseCompletion)
	}

	sysopAPI := r.Group("/api/sysop")
	{
		sysopAPI.POST("/login", sysopHandlers.Login)

		// Operator endpoints behind JWT auth
		sysopAPI.Use(sysopHandlers.AuthMiddleware())
		{
			sysopAPI.GET("/cache/stats", sysopHandlers.GetCacheStats)
			sysopAPI.POST("/cache/clear", sysopHandlers.ClearCache)
			sysopAPI.GET("/slow-queries", sysopHandlers.GetSlowQueries)
			sysopAPI.GET("/db/status", sysopHandlers.GetDBStatus)
			sysopAPI.GET("/logs/levels", sysopHandlers.GetLogLevels)
			sysopAPI.POST("/logs/levels", sysopHandlers.SetLogLevel)
		}
	}

	return r
}
