package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
)

func TestClassifyKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"bad conn", driver.ErrBadConn, KindConnection},
		{"locked", errors.New("database is locked"), KindUnavailable},
		{"busy", errors.New("database is busy"), KindUnavailable},
		{"deadlock", errors.New("deadlock detected"), KindDeadlock},
		{"timeout text", errors.New("query timed out"), KindTimeout},
		{"reset", errors.New("read tcp: connection reset by peer"), KindConnection},
		{"syntax", errors.New("near \"SELEC\": syntax error"), KindFatal},
		{"constraint", errors.New("UNIQUE constraint failed: users.email"), KindFatal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qe := classify("query", tc.err)
			if qe.Kind != tc.want {
				t.Fatalf("classify(%v) kind = %s, want %s", tc.err, qe.Kind, tc.want)
			}
		})
	}
}

func TestClassifyPreservesExistingClassification(t *testing.T) {
	original := &QueryError{Kind: KindDeadlock, Op: "query", Err: errors.New("deadlock detected")}
	qe := classify("retry", original)
	if qe != original {
		t.Fatal("already-classified errors must pass through unchanged")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(errors.New("plain error")) {
		t.Fatal("unclassified errors are not retryable")
	}
	if IsRetryable(&QueryError{Kind: KindFatal, Op: "query", Err: errors.New("syntax error")}) {
		t.Fatal("fatal errors are not retryable")
	}
	for _, kind := range []ErrorKind{KindConnection, KindDeadlock, KindTimeout, KindUnavailable} {
		if !IsRetryable(&QueryError{Kind: kind, Op: "query", Err: errors.New("transient")}) {
			t.Fatalf("%s should be retryable", kind)
		}
	}
}

func TestQueryErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	qe := classify("query", inner)
	if !errors.Is(qe, inner) {
		t.Fatal("QueryError must unwrap to the original error")
	}
}
