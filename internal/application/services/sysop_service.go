// Package services: sysop dashboard operations.
package services

import (
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/persistence/database"
	"github.com/LearnStack/learnstack-go/internal/infrastructure/security"
	"github.com/LearnStack/learnstack-go/pkg/config"
	"golang.org/x/crypto/bcrypt"
)

const sysOpTokenTTL = 24 * time.Hour

// SysOpService handles operator authentication and database introspection.
type SysOpService struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSysOpService creates a new sysop service with injected dependencies.
func NewSysOpService(db *database.DB, logger *logging.ChanneledLogger) *SysOpService {
	return &SysOpService{
		db:     db,
		logger: logger,
	}
}

// AuthResult holds authentication result data.
type AuthResult struct {
	Token   string `json:"token,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Authenticate validates the operator password and issues a JWT.
func (s *SysOpService) Authenticate(password string) *AuthResult {
	if config.SysOpPasswordHash == "" {
		return &AuthResult{Success: false, Error: "Sysop access not configured"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(config.SysOpPasswordHash), []byte(password)); err != nil {
		s.logger.Auth().Warn("Sysop authentication failed")
		return &AuthResult{Success: false, Error: "Invalid credentials"}
	}

	token, err := security.GenerateSysOpToken(config.JWTSecret, sysOpTokenTTL)
	if err != nil {
		s.logger.Auth().Error("Failed to sign sysop token", "error", err.Error())
		return &AuthResult{Success: false, Error: "Token generation failed"}
	}

	s.logger.Auth().Info("Sysop authenticated")
	return &AuthResult{Success: true, Token: token}
}

// DBStatus reports connection pool health for the dashboard.
type DBStatus struct {
	Healthy           bool   `json:"healthy"`
	OpenConnections   int    `json:"openConnections"`
	InUse             int    `json:"inUse"`
	Idle              int    `json:"idle"`
	WaitCount         int64  `json:"waitCount"`
	WaitDuration      string `json:"waitDuration"`
	MaxOpenConns      int    `json:"maxOpenConns"`
	MaxIdleClosed     int64  `json:"maxIdleClosed"`
	MaxLifetimeClosed int64  `json:"maxLifetimeClosed"`
}

// DatabaseStatus pings the database and snapshots pool statistics.
func (s *SysOpService) DatabaseStatus() *DBStatus {
	stats := s.db.Stats()
	status := &DBStatus{
		Healthy:           s.db.Ping() == nil,
		OpenConnections:   stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration.String(),
		MaxOpenConns:      stats.MaxOpenConnections,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
	if !status.Healthy {
		s.logger.Alert().Warn("Database ping failed during status check")
	}
	return status
}
