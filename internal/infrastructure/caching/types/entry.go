// Package types defines the shared cache entry and option types.
package types

import "time"

// Entry is one cached query result.
type Entry struct {
	Key        string
	Value      any
	Size       int64 // approximate bytes, JSON-serialized length of Value
	InsertedAt time.Time
	TTL        time.Duration
}

// Fresh reports whether the entry is still within its TTL.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Sub(e.InsertedAt) < e.TTL
}

// Options controls a single cache lookup.
type Options struct {
	// TTL for the entry stored on miss or refresh. Zero means the cache's
	// configured default.
	TTL time.Duration
	// AllowStale returns an expired entry immediately and refreshes it in the
	// background instead of blocking the caller on the fetch.
	AllowStale bool
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	StaleHits int64 `json:"staleHits"`
	Evictions int64 `json:"evictions"`
	Refreshes int64 `json:"refreshes"`
	Entries   int   `json:"entries"`
	Bytes     int64 `json:"bytes"`
}
