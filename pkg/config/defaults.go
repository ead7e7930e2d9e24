// Package config provides centralized default values for LearnStack
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseInt(valStr, 10, 64); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Database
	DBDriver                 string
	DBDataSource             string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int
	QueryTimeout             time.Duration

	// Retry Executor
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryTimeout      time.Duration

	// Query Cache
	CacheMaxEntries      int
	CacheMaxBytes        int64
	CacheDefaultTTL      time.Duration
	CacheCleanupInterval time.Duration

	// Slow Query Telemetry
	SlowQueryThreshold  time.Duration
	SlowQueryMaxRecords int

	// Event Batch Pipeline
	EventBatchSize     int
	EventBatchInterval time.Duration
	EventBatchMinItems int

	// Course Counters
	ViewFlushInterval        time.Duration
	ViewFlushThreshold       int
	CompletionFlushInterval  time.Duration
	CompletionFlushThreshold int

	// SysOp Access
	SysOpPasswordHash string
	JWTSecret         string
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Database
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBDataSource = getEnvString("DB_DATA_SOURCE", "learnstack.db")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)
	QueryTimeout = getEnvDuration("QUERY_TIMEOUT", 10*time.Second)

	// Retry Executor
	RetryMaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", 3)
	RetryInitialDelay = getEnvDuration("RETRY_INITIAL_DELAY", 100*time.Millisecond)
	RetryTimeout = getEnvDuration("RETRY_TIMEOUT", 30*time.Second)

	// Query Cache
	CacheMaxEntries = getEnvInt("CACHE_MAX_ENTRIES", 1000)
	CacheMaxBytes = getEnvInt64("CACHE_MAX_BYTES", 64*1024*1024)
	CacheDefaultTTL = getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute)
	CacheCleanupInterval = getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute)

	// Slow Query Telemetry
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 150*time.Millisecond)
	SlowQueryMaxRecords = getEnvInt("SLOW_QUERY_MAX_RECORDS", 200)

	// Event Batch Pipeline
	EventBatchSize = getEnvInt("EVENT_BATCH_SIZE", 100)
	EventBatchInterval = getEnvDuration("EVENT_BATCH_INTERVAL", 10*time.Second)
	EventBatchMinItems = getEnvInt("EVENT_BATCH_MIN_ITEMS", 5)

	// Course Counters
	ViewFlushInterval = getEnvDuration("VIEW_FLUSH_INTERVAL", 30*time.Second)
	ViewFlushThreshold = getEnvInt("VIEW_FLUSH_THRESHOLD", 50)
	CompletionFlushInterval = getEnvDuration("COMPLETION_FLUSH_INTERVAL", 15*time.Second)
	CompletionFlushThreshold = getEnvInt("COMPLETION_FLUSH_THRESHOLD", 10)

	// SysOp Access
	SysOpPasswordHash = getEnvString("SYSOP_PASSWORD_HASH", "")
	JWTSecret = getEnvString("JWT_SECRET", "")
}
