package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// IsBusyError reports SQLITE_BUSY and "database is locked" errors, the two
// forms of write contention that are worth retrying.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

const (
	busyRetries   = 3
	busyBaseDelay = 50 * time.Millisecond
)

// withBusyRetry runs fn with exponential backoff on busy errors
// (50ms, 100ms, 200ms).
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < busyRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsBusyError(err) || i == busyRetries-1 {
			break
		}
		delay := busyBaseDelay * time.Duration(1<<i)
		slog.Debug("database busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
