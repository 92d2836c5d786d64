// Package resilience wraps the hosted collaborators with per-attempt
// timeouts, bounded retry and a circuit breaker, so a slow or failing
// service costs one request instead of stalling every session.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the collaborator while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a Breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a Breaker. Zero values take defaults.
type BreakerConfig struct {
	Name string
	// MaxFailures consecutive failures open the breaker. Default 5.
	MaxFailures int
	// ResetTimeout is how long the breaker stays open. Default 30s.
	ResetTimeout time.Duration
	// HalfOpenMax successful probes close it again. Default 1.
	HalfOpenMax int
}

// Breaker is a closed/open/half-open circuit breaker.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCalls int
	halfOpenOK    int
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          time.Now,
	}
}

// Execute runs fn unless the breaker is open. Every error from fn counts as
// a failure.
func (b *Breaker) Execute(fn func() error) error {
	return b.ExecuteCounting(fn, nil)
}

// ExecuteCounting runs fn unless the breaker is open. An error for which
// counts returns false leaves the failure count untouched and frees the
// half-open probe slot it held. A nil counts counts every error.
func (b *Breaker) ExecuteCounting(fn func() error, counts func(error) bool) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err == nil:
		b.onSuccess(probe)
	case counts != nil && !counts(err):
		b.onNeutral(probe)
	default:
		b.onFailure(probe)
	}
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.halfOpenCalls = 0
		b.halfOpenOK = 0
		slog.Info("circuit breaker half-open", "name", b.name)
	case StateHalfOpen:
		if b.halfOpenCalls >= b.halfOpenMax {
			return false, ErrCircuitOpen
		}
	}

	if b.state == StateHalfOpen {
		b.halfOpenCalls++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) onFailure(probe bool) {
	if probe || b.state == StateHalfOpen {
		b.trip()
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.trip()
	}
}

func (b *Breaker) onSuccess(probe bool) {
	if !probe {
		b.failures = 0
		return
	}
	b.halfOpenOK++
	if b.halfOpenOK >= b.halfOpenMax {
		b.state = StateClosed
		b.failures = 0
		slog.Info("circuit breaker closed", "name", b.name)
	}
}

func (b *Breaker) onNeutral(probe bool) {
	if probe && b.halfOpenCalls > 0 {
		b.halfOpenCalls--
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	slog.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.failures)
}

// State returns the current state. An open breaker whose timeout elapsed
// reports StateHalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}
