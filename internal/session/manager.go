// Package session owns the lifecycle of exam sessions: keyed lookup,
// per-key serialization of updates and inactivity expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/ielts-coach/internal/domain"
	"github.com/ashureev/ielts-coach/internal/store"
)

// ErrNotFound is returned when no session exists for a key.
var ErrNotFound = errors.New("session not found")

// Key joins an anonymous user id and a tab session id.
func Key(userID, tabID string) string {
	return userID + ":" + tabID
}

// Manager loads, mutates and saves exam sessions. Updates to the same key
// run one at a time; different keys proceed in parallel.
type Manager struct {
	repo  store.Repository
	locks *keyedMutex
	now   func() time.Time
}

// NewManager returns a Manager backed by repo.
func NewManager(repo store.Repository) *Manager {
	return &Manager{repo: repo, locks: newKeyedMutex(), now: time.Now}
}

// Get returns a snapshot of the session for key.
func (m *Manager) Get(ctx context.Context, key string) (*domain.ExamSession, error) {
	s, err := m.repo.GetSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// Begin applies fn to the session for key, creating it when missing.
func (m *Manager) Begin(ctx context.Context, key string, fn func(*domain.ExamSession) error) (*domain.ExamSession, error) {
	return m.apply(ctx, key, true, fn)
}

// Update applies fn to an existing session. The session is saved only when
// fn returns nil, so a failed turn leaves no trace.
func (m *Manager) Update(ctx context.Context, key string, fn func(*domain.ExamSession) error) (*domain.ExamSession, error) {
	return m.apply(ctx, key, false, fn)
}

func (m *Manager) apply(ctx context.Context, key string, create bool, fn func(*domain.ExamSession) error) (*domain.ExamSession, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	s, err := m.repo.GetSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	switch {
	case s == nil && !create:
		return nil, ErrNotFound
	case s == nil:
		s = domain.NewExamSession(key, m.now())
	default:
		s = s.Clone()
	}

	if err := fn(s); err != nil {
		return nil, err
	}

	s.UpdatedAt = m.now()
	if err := m.repo.UpsertSession(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}

// Delete removes the session for key.
func (m *Manager) Delete(ctx context.Context, key string) error {
	unlock := m.locks.Lock(key)
	defer unlock()
	if err := m.repo.DeleteSession(ctx, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.repo.CountSessions(ctx)
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
