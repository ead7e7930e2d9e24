// Package telemetry provides slow-query tracking with pattern aggregation
// and advisory tuning suggestions.
package telemetry

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
)

var (
	whitespaceRe    = regexp.MustCompile(`\s+`)
	numberLiteralRe = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	stringLiteralRe = regexp.MustCompile(`'[^']*'|"[^"]*"`)
)

// SlowQueryRecord aggregates executions of one normalized query pattern.
type SlowQueryRecord struct {
	Pattern    string        `json:"pattern"`
	Count      int64         `json:"count"`
	TotalTime  time.Duration `json:"totalTime"`
	MaxTime    time.Duration `json:"maxTime"`
	LastSeen   time.Time     `json:"lastSeen"`
	Path       string        `json:"path,omitempty"`
	Tags       []string      `json:"tags,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// AverageTime returns the mean duration across all recorded executions.
func (r *SlowQueryRecord) AverageTime() time.Duration {
	if r.Count == 0 {
		return 0
	}
	return r.TotalTime / time.Duration(r.Count)
}

// Impact estimates how much total latency this pattern contributes:
// hit count multiplied by average duration.
func (r *SlowQueryRecord) Impact() float64 {
	return float64(r.Count) * float64(r.AverageTime())
}

// Registry tracks slow queries grouped by normalized pattern. The record set
// is bounded; the least-frequently-hit pattern is evicted on overflow.
type Registry struct {
	mu         sync.Mutex
	records    map[string]*SlowQueryRecord
	threshold  time.Duration
	maxRecords int
	logger     *logging.ChanneledLogger
}

// NewRegistry creates a slow-query registry.
func NewRegistry(threshold time.Duration, maxRecords int, logger *logging.ChanneledLogger) *Registry {
	if logger != nil {
		logger.Perf().Info("Initializing slow query registry",
			"threshold", threshold,
			"maxRecords", maxRecords)
	}

	return &Registry{
		records:    make(map[string]*SlowQueryRecord),
		threshold:  threshold,
		maxRecords: maxRecords,
		logger:     logger,
	}
}

// Record observes one query execution. Executions faster than the threshold
// are ignored; slower ones are aggregated under their normalized pattern.
func (reg *Registry) Record(queryText string, duration time.Duration, path string, tags []string) {
	if duration < reg.threshold {
		return
	}

	pattern := NormalizePattern(queryText)

	reg.mu.Lock()
	record, exists := reg.records[pattern]
	if !exists {
		if len(reg.records) >= reg.maxRecords {
			reg.evictLeastFrequent()
		}
		record = &SlowQueryRecord{Pattern: pattern}
		reg.records[pattern] = record
	}

	record.Count++
	record.TotalTime += duration
	if duration > record.MaxTime {
		record.MaxTime = duration
	}
	record.LastSeen = time.Now().UTC()
	if path != "" {
		record.Path = path
	}
	if len(tags) > 0 {
		record.Tags = tags
	}
	reg.mu.Unlock()

	if reg.logger != nil {
		reg.logger.LogSlowQuery(queryText, duration, path)
	}
}

// evictLeastFrequent removes the record with the lowest hit count.
// Caller must hold reg.mu.
func (reg *Registry) evictLeastFrequent() {
	var victim string
	var victimCount int64 = -1

	for pattern, record := range reg.records {
		if victimCount == -1 || record.Count < victimCount {
			victim = pattern
			victimCount = record.Count
		}
	}

	if victim != "" {
		delete(reg.records, victim)
	}
}

// Stats returns all records sorted by estimated impact descending, each
// annotated with a best-effort tuning suggestion. Suggestions are advisory
// text only.
func (reg *Registry) Stats() []SlowQueryRecord {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	stats := make([]SlowQueryRecord, 0, len(reg.records))
	for _, record := range reg.records {
		snapshot := *record
		snapshot.Suggestion = Suggest(record.Pattern)
		stats = append(stats, snapshot)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Impact() > stats[j].Impact()
	})

	return stats
}

// Len returns the number of tracked patterns.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.records)
}

// Reset drops all tracked records.
func (reg *Registry) Reset() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.records = make(map[string]*SlowQueryRecord)
}

// NormalizePattern collapses whitespace and masks literals so parameterized
// variants of the same query group under one pattern.
func NormalizePattern(queryText string) string {
	pattern := stringLiteralRe.ReplaceAllString(queryText, "?")
	pattern = numberLiteralRe.ReplaceAllString(pattern, "?")
	pattern = whitespaceRe.ReplaceAllString(pattern, " ")
	return strings.TrimSpace(pattern)
}

// Suggest derives advisory tuning text from simple pattern checks.
func Suggest(pattern string) string {
	upper := strings.ToUpper(pattern)

	switch {
	case strings.Contains(upper, "SELECT *") && !strings.Contains(upper, "LIMIT"):
		return "SELECT * without LIMIT can scan and transfer entire tables; select needed columns and bound the result set"
	case strings.Contains(upper, "LIKE"):
		return "LIKE can defeat index usage when the pattern starts with a wildcard; consider full-text search or a prefix match"
	case strings.Contains(upper, "ORDER BY") && !strings.Contains(upper, "LIMIT"):
		return "ORDER BY without LIMIT sorts the full result set; add LIMIT or an index matching the sort order"
	case strings.Contains(upper, "JOIN") && !strings.Contains(upper, "INDEXED BY") && !strings.Contains(upper, " ON "):
		return "JOIN without an explicit join condition produces a cartesian product; verify the ON clause and supporting indexes"
	case strings.Contains(upper, "JOIN"):
		return "verify both sides of the join are covered by indexes"
	default:
		return ""
	}
}
