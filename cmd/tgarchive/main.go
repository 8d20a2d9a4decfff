// Package main contains the entrypoint for the channel archive service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tgarchive/internal/app"
	"tgarchive/internal/archive"
	"tgarchive/internal/config"
	"tgarchive/internal/database"
	"tgarchive/internal/logger"
	"tgarchive/internal/scheduler"
	"tgarchive/internal/server"
	"tgarchive/internal/tasks"
	"tgarchive/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components and blocks until shutdown, returning
// the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	// A missing .env is fine; configuration also comes from the
	// environment and config.yaml.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	for _, dir := range []string{filepath.Dir(cfg.Database.Path), filepath.Dir(cfg.Telegram.SessionFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("Failed to create data directory", "dir", dir, "error", err)
			return 1
		}
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	tgClient := telegram.NewClient(cfg.Telegram, log)
	archiver := archive.NewArchiver(store, tgClient, cfg.Archive, cfg.Telegram.PageSize, log)

	taskRegistry := tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:   log,
		Store:    store,
		Archiver: archiver,
	})
	sched, err := scheduler.NewScheduler(cfg.Scheduler, taskRegistry, log)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	srv := server.NewServer(cfg.Server, archiver, store, log)

	application := app.NewApp(log, tgClient, srv, sched)
	runErr := application.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Service stopped gracefully")
	time.Sleep(time.Second)
	return 0
}
