// Package app orchestrates the lifecycle of the archive service
// components: the Telegram client, the HTTP server, and the scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"tgarchive/internal/scheduler"
	"tgarchive/internal/server"
	"tgarchive/internal/telegram"
)

// App wires the long-running components together.
type App struct {
	logger    *slog.Logger
	tgClient  *telegram.Client
	server    *server.Server
	scheduler *scheduler.Scheduler
}

// NewApp creates the application orchestrator.
func NewApp(
	logger *slog.Logger,
	tgClient *telegram.Client,
	srv *server.Server,
	sched *scheduler.Scheduler,
) *App {
	return &App{
		logger:    logger.With("component", "app"),
		tgClient:  tgClient,
		server:    srv,
		scheduler: sched,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. A failure in any component shuts the others down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting application")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.tgClient.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("telegram client failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// Serve only once the Telegram client is usable; requests that
		// trigger a fetch would otherwise fail during startup.
		if err := a.tgClient.WaitReady(gCtx); err != nil {
			return err
		}
		return a.server.Run(gCtx)
	})

	g.Go(func() error {
		if err := a.tgClient.WaitReady(gCtx); err != nil {
			return err
		}
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping scheduler")
		if err := a.scheduler.Stop(); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Application stopped due to error", "error", err)
		return err
	}

	a.logger.Info("Application stopped gracefully")
	return nil
}
