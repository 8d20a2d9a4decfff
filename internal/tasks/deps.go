// Package tasks defines the scheduled background tasks of the archive
// service and their registry.
package tasks

import (
	"log/slog"

	"tgarchive/internal/archive"
	"tgarchive/internal/database"
)

// TaskDeps carries the dependencies scheduled tasks may use.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Archiver *archive.Archiver
}
