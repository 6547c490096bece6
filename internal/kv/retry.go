package kv

import (
	"context"
	"strings"
	"time"
)

const (
	conflictRetries = 3
	conflictBackoff = 50 * time.Millisecond
)

// isConflictError reports whether err is a SQLite concurrency error
// (SQLITE_BUSY or "database is locked") that warrants a retry.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withConflictRetry runs fn, retrying with exponential backoff while it
// fails with a SQLite concurrency error.
func withConflictRetry(ctx context.Context, fn func() error) error {
	var err error
	backoff := conflictBackoff
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err = fn()
		if !isConflictError(err) {
			return err
		}
	}
	return err
}
