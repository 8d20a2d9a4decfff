package tasks

import (
	"context"
	"fmt"
	"time"
)

// newRefreshChannelsTask creates the task that re-fetches every tracked
// channel whose archive has gone stale.
func newRefreshChannelsTask(deps TaskDeps) TaskFunc {
	log := deps.Logger.With("task", "refresh_channels")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting stale channel refresh")
		startTime := time.Now()

		err := deps.Archiver.RefreshStale(ctx)
		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Stale channel refresh failed", "error", err, "duration", duration)
			return fmt.Errorf("stale channel refresh: %w", err)
		}

		log.InfoContext(ctx, "Stale channel refresh completed", "duration", duration)
		return nil
	}
}
