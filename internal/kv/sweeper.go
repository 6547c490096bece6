package kv

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepInterval = 1 * time.Minute

type expiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// StartSweeper runs a background goroutine that periodically evicts
// expired entries. Expiry is already enforced logically on every read;
// the sweeper only reclaims disk space. The after hooks run once per
// sweep so in-process bookkeeping tied to expired entries can be
// reclaimed on the same cadence. It stops when ctx is canceled.
func StartSweeper(ctx context.Context, store expiredDeleter, interval time.Duration, after ...func(context.Context)) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("kv sweeper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				deleted, err := store.DeleteExpired(ctx)
				if err != nil {
					slog.Error("kv sweeper failed to delete expired entries", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Debug("kv sweeper evicted expired entries", "count", deleted)
				}
				for _, fn := range after {
					fn(ctx)
				}
			case <-ctx.Done():
				slog.Info("kv sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
