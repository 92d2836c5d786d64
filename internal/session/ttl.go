package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ExpireCallback is called for every session removed by the sweeper.
type ExpireCallback func(key string)

// Sweep removes sessions idle for longer than ttl once and returns how many
// were removed. Each candidate is re-checked under its key lock, so a session
// whose update was in flight when the sweep started survives it.
func (m *Manager) Sweep(ctx context.Context, ttl time.Duration, onExpire ExpireCallback) (int, error) {
	keys, err := m.repo.ExpiredSessionKeys(ctx, ttl)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		ok, err := m.expire(ctx, key, ttl)
		if err != nil {
			return removed, err
		}
		if !ok {
			continue
		}
		removed++
		if onExpire != nil {
			onExpire(key)
		}
	}
	if removed > 0 {
		slog.Info("TTL sweeper removed idle sessions", "count", removed, "ttl", ttl)
	}
	return removed, nil
}

func (m *Manager) expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	s, err := m.repo.GetSession(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if s == nil || m.now().Sub(s.UpdatedAt) <= ttl {
		return false, nil
	}
	if err := m.repo.DeleteSession(ctx, key); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return true, nil
}

// RunSweeper sweeps every interval until ctx ends.
func (m *Manager) RunSweeper(ctx context.Context, interval, ttl time.Duration, onExpire ExpireCallback) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("TTL sweeper started", "interval", interval, "ttl", ttl)

	for {
		select {
		case <-ticker.C:
			if _, err := m.Sweep(ctx, ttl, onExpire); err != nil && ctx.Err() == nil {
				slog.Error("TTL sweeper failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("TTL sweeper shutting down", "reason", ctx.Err())
			return
		}
	}
}
