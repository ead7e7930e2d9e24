package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"
)

// ErrorKind tags a query failure at its source so downstream layers never
// have to sniff error message text.
type ErrorKind int

const (
	// KindFatal covers syntax errors, constraint violations, and anything
	// else that will not succeed on retry.
	KindFatal ErrorKind = iota
	// KindConnection covers reset or dropped connections.
	KindConnection
	// KindDeadlock covers lock contention the engine resolved by aborting us.
	KindDeadlock
	// KindTimeout covers exceeded per-query deadlines.
	KindTimeout
	// KindUnavailable covers temporary conditions such as a busy or locked
	// database, or an open circuit breaker.
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindDeadlock:
		return "deadlock"
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	default:
		return "fatal"
	}
}

// QueryError carries the classified failure of one query execution.
type QueryError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Retryable reports whether the failure belongs to a transient category.
func (e *QueryError) Retryable() bool {
	switch e.Kind {
	case KindConnection, KindDeadlock, KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a transient query failure.
func IsRetryable(err error) bool {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Retryable()
	}
	return false
}

// classify wraps a raw driver error into a QueryError, assigning its kind
// exactly once at the point of failure.
func classify(op string, err error) *QueryError {
	if err == nil {
		return nil
	}

	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}

	return &QueryError{Kind: kindOf(err), Op: op, Err: err}
}

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return KindConnection
	}

	// Driver errors that reach us as plain strings (the sqlite3 and libsql
	// drivers do not expose sentinel values for these conditions).
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadlock"):
		return KindDeadlock
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return KindTimeout
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "busy"),
		strings.Contains(msg, "temporarily unavailable"):
		return KindUnavailable
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "bad connection"):
		return KindConnection
	default:
		return KindFatal
	}
}
