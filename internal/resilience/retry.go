package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy bounds how a collaborator call is attempted.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay doubles after every failed attempt, up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// AttemptTimeout caps each attempt. Zero leaves only the caller's deadline.
	AttemptTimeout time.Duration
}

// DefaultPolicy is used by the collaborator wrappers when none is supplied.
var DefaultPolicy = Policy{
	MaxRetries:     2,
	BaseDelay:      250 * time.Millisecond,
	MaxDelay:       4 * time.Second,
	AttemptTimeout: 60 * time.Second,
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, the retry budget is spent, the breaker opens
// or ctx ends. Each attempt gets its own timeout derived from ctx.
//
// Only errors Retryable accepts are retried or counted by b. An attempt cut
// short because ctx itself ended is never held against the collaborator.
func Do(ctx context.Context, name string, p Policy, b *Breaker, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			d := p.delay(attempt - 1)
			slog.Debug("retrying collaborator call", "name", name, "attempt", attempt+1, "delay", d, "error", err)
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return errors.Join(err, ctx.Err())
			case <-t.C:
			}
		}

		err = attemptOnce(ctx, p.AttemptTimeout, b, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil || !Retryable(err) {
			return err
		}
	}
	return err
}

func attemptOnce(ctx context.Context, timeout time.Duration, b *Breaker, fn func(ctx context.Context) error) error {
	run := func() error {
		actx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return fn(actx)
	}
	if b == nil {
		return run()
	}
	return b.ExecuteCounting(run, func(err error) bool {
		return ctx.Err() == nil && Retryable(err)
	})
}
