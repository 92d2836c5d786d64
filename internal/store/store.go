// Package store provides exam session persistence interfaces and
// implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/ielts-coach/internal/domain"
)

// Repository persists exam sessions keyed by "<user>:<tab>".
type Repository interface {
	// GetSession returns the session for key, or nil when none exists.
	GetSession(ctx context.Context, key string) (*domain.ExamSession, error)

	// UpsertSession creates or replaces a session.
	UpsertSession(ctx context.Context, s *domain.ExamSession) error

	// DeleteSession removes a session. Deleting a missing key is not an error.
	DeleteSession(ctx context.Context, key string) error

	// ExpiredSessionKeys returns the keys of sessions idle for longer than
	// ttl. Nothing is removed.
	ExpiredSessionKeys(ctx context.Context, ttl time.Duration) ([]string, error)

	// CountSessions returns the number of stored sessions.
	CountSessions(ctx context.Context) (int, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
