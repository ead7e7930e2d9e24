package telemetry

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
)

func newTestRegistry(threshold time.Duration, maxRecords int) *Registry {
	return NewRegistry(threshold, maxRecords, logging.NewTestLogger())
}

func TestNormalizePattern(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{
			in:   "SELECT * FROM courses WHERE id = 42",
			want: "SELECT * FROM courses WHERE id = ?",
		},
		{
			in:   "SELECT name FROM users\n\tWHERE email = 'bob@example.com'",
			want: "SELECT name FROM users WHERE email = ?",
		},
		{
			in:   "SELECT  id,   title FROM courses WHERE price > 19.99",
			want: "SELECT id, title FROM courses WHERE price > ?",
		},
	}

	for _, tc := range cases {
		if got := NormalizePattern(tc.in); got != tc.want {
			t.Errorf("NormalizePattern(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRecordBelowThresholdIgnored(t *testing.T) {
	reg := newTestRegistry(150*time.Millisecond, 10)

	reg.Record("SELECT 1", 100*time.Millisecond, "", nil)

	if reg.Len() != 0 {
		t.Fatalf("expected no records below threshold, got %d", reg.Len())
	}
}

func TestRecordAboveThreshold(t *testing.T) {
	reg := newTestRegistry(150*time.Millisecond, 10)

	reg.Record("SELECT * FROM courses WHERE id = 7", 200*time.Millisecond, "/api/v1/courses", nil)

	stats := reg.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(stats))
	}
	if stats[0].Count != 1 {
		t.Errorf("expected count 1, got %d", stats[0].Count)
	}
	if avg := stats[0].AverageTime(); avg != 200*time.Millisecond {
		t.Errorf("expected average 200ms, got %v", avg)
	}
	if stats[0].Path != "/api/v1/courses" {
		t.Errorf("expected path to be retained, got %q", stats[0].Path)
	}
}

func TestParameterizedVariantsGroup(t *testing.T) {
	reg := newTestRegistry(time.Millisecond, 10)

	reg.Record("SELECT title FROM courses WHERE id = 1", 10*time.Millisecond, "", nil)
	reg.Record("SELECT title FROM courses WHERE id = 2", 20*time.Millisecond, "", nil)
	reg.Record("SELECT title FROM courses WHERE id = 999", 30*time.Millisecond, "", nil)

	stats := reg.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected variants to group under one pattern, got %d records", len(stats))
	}
	if stats[0].Count != 3 {
		t.Errorf("expected count 3, got %d", stats[0].Count)
	}
	if stats[0].MaxTime != 30*time.Millisecond {
		t.Errorf("expected max 30ms, got %v", stats[0].MaxTime)
	}
}

func TestStatsSortedByImpact(t *testing.T) {
	reg := newTestRegistry(time.Millisecond, 10)

	// Low impact: one slow-ish hit.
	reg.Record("SELECT a FROM t1 WHERE x = 1", 10*time.Millisecond, "", nil)
	// High impact: many hits.
	for i := 0; i < 20; i++ {
		reg.Record(fmt.Sprintf("SELECT b FROM t2 WHERE y = %d", i), 8*time.Millisecond, "", nil)
	}

	stats := reg.Stats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 records, got %d", len(stats))
	}
	if !strings.Contains(stats[0].Pattern, "t2") {
		t.Errorf("expected highest-impact pattern first, got %q", stats[0].Pattern)
	}
}

func TestLeastFrequentEvictedOnOverflow(t *testing.T) {
	reg := newTestRegistry(time.Millisecond, 2)

	reg.Record("SELECT a FROM hot WHERE x = 1", 10*time.Millisecond, "", nil)
	reg.Record("SELECT a FROM hot WHERE x = 2", 10*time.Millisecond, "", nil)
	reg.Record("SELECT b FROM cold WHERE y = 1", 10*time.Millisecond, "", nil)

	// Registry is full; inserting a new pattern must evict the cold one.
	reg.Record("SELECT c FROM fresh WHERE z = 1", 10*time.Millisecond, "", nil)

	if reg.Len() != 2 {
		t.Fatalf("expected bounded record set of 2, got %d", reg.Len())
	}
	for _, record := range reg.Stats() {
		if strings.Contains(record.Pattern, "cold") {
			t.Errorf("expected least-frequent pattern to be evicted, still present: %q", record.Pattern)
		}
	}
}

func TestSuggestions(t *testing.T) {
	cases := []struct {
		pattern string
		substr  string
	}{
		{"SELECT * FROM courses WHERE id = ?", "SELECT *"},
		{"SELECT id FROM courses WHERE title LIKE ?", "wildcard"},
		{"SELECT id FROM courses ORDER BY created_at", "ORDER BY"},
		{"SELECT id FROM a JOIN b", "join"},
		{"SELECT id FROM courses WHERE id = ? LIMIT 1", ""},
	}

	for _, tc := range cases {
		got := Suggest(tc.pattern)
		if tc.substr == "" {
			if got != "" {
				t.Errorf("Suggest(%q) = %q, want no suggestion", tc.pattern, got)
			}
			continue
		}
		if !strings.Contains(strings.ToLower(got), strings.ToLower(tc.substr)) {
			t.Errorf("Suggest(%q) = %q, want mention of %q", tc.pattern, got, tc.substr)
		}
	}
}
