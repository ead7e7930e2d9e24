package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/LearnStack/learnstack-go/internal/application/services"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/security"
	"github.com/LearnStack/learnstack-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// SysOpHandlers handles operator authentication and introspection endpoints.
type SysOpHandlers struct {
	sysop  *services.SysOpService
	query  *services.QueryService
	logger *logging.ChanneledLogger
}

// NewSysOpHandlers creates new sysop handlers.
func NewSysOpHandlers(sysop *services.SysOpService, query *services.QueryService, logger *logging.ChanneledLogger) *SysOpHandlers {
	return &SysOpHandlers{
		sysop:  sysop,
		query:  query,
		logger: logger,
	}
}

// Login handles operator authentication.
func (h *SysOpHandlers) Login(c *gin.Context) {
	var request struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result := h.sysop.Authenticate(request.Password)
	if !result.Success {
		c.JSON(http.StatusUnauthorized, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AuthMiddleware guards the sysop group with bearer-token JWT validation.
func (h *SysOpHandlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		claims, err := security.ValidateJWT(token, config.JWTSecret)
		if err != nil || !security.IsSysOpClaims(claims) {
			h.logger.Auth().Warn("Rejected sysop token", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Next()
	}
}

// GetCacheStats returns cache and scheduler counters.
func (h *SysOpHandlers) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cache":     h.query.CacheStats(),
		"scheduler": h.query.SchedulerStats(),
	})
}

// ClearCache invalidates by key, prefix, or everything.
func (h *SysOpHandlers) ClearCache(c *gin.Context) {
	var request struct {
		Key string `json:"key"`
	}
	// Missing body means a full clear.
	_ = c.ShouldBindJSON(&request)

	removed := h.query.ClearQueryCache(request.Key)
	h.logger.Cache().Info("Cache cleared via sysop endpoint",
		"key", request.Key,
		"removed", removed)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// GetSlowQueries returns the slow-query records sorted by impact.
func (h *SysOpHandlers) GetSlowQueries(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"slowQueries": h.query.SlowQueryStats()})
}

// GetDBStatus reports database pool health.
func (h *SysOpHandlers) GetDBStatus(c *gin.Context) {
	status := h.sysop.DatabaseStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// GetLogLevels returns the current per-channel log levels.
func (h *SysOpHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.logger.GetChannelLevels())
}

// SetLogLevel adjusts one channel's level at runtime.
func (h *SysOpHandlers) SetLogLevel(c *gin.Context) {
	var request struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(request.Level)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log level"})
		return
	}

	if err := h.logger.SetChannelLevel(logging.Channel(request.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": request.Channel, "level": level.String()})
}
