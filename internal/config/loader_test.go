package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tgarchive/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, `
telegram:
  api_id: 12345
  api_hash: "abcdef"
`))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if got, want := cfg.Server.Addr(), "0.0.0.0:8000"; got != want {
		t.Errorf("Server.Addr() = %q, want %q", got, want)
	}
	if got, want := cfg.Archive.CacheTTL, 24*time.Hour; got != want {
		t.Errorf("Archive.CacheTTL = %v, want %v", got, want)
	}
	if got, want := cfg.Archive.DefaultPerPage, 10; got != want {
		t.Errorf("Archive.DefaultPerPage = %d, want %d", got, want)
	}
	if got, want := cfg.Telegram.PageSize, 100; got != want {
		t.Errorf("Telegram.PageSize = %d, want %d", got, want)
	}
	if got, want := cfg.Database.Path, "data/data.db"; got != want {
		t.Errorf("Database.Path = %q, want %q", got, want)
	}
	if cfg.Logger.Level != "info" || !cfg.Logger.JSON {
		t.Errorf("Logger defaults = %+v, want level=info json=true", cfg.Logger)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("ARCHIVE_TELEGRAM_API_ID", "777")
	t.Setenv("ARCHIVE_TELEGRAM_API_HASH", "hash")

	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() with missing file error = %v", err)
	}
	if cfg.Telegram.APIID != 777 {
		t.Errorf("Telegram.APIID = %d, want 777 (from env)", cfg.Telegram.APIID)
	}
	if cfg.Telegram.APIHash != "hash" {
		t.Errorf("Telegram.APIHash = %q, want %q (from env)", cfg.Telegram.APIHash, "hash")
	}
}

// The shipped config.yaml carries no credentials; they arrive only via
// ARCHIVE_* env vars (usually from .env). That combination must load.
func TestLoadConfigCredentialsFromEnvOnly(t *testing.T) {
	t.Setenv("ARCHIVE_TELEGRAM_API_ID", "424242")
	t.Setenv("ARCHIVE_TELEGRAM_API_HASH", "secret-hash")

	cfg, err := config.LoadConfig(writeConfig(t, `
server:
  port: 9000
telegram:
  page_size: 50
`))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Telegram.APIID != 424242 {
		t.Errorf("Telegram.APIID = %d, want 424242 (from env)", cfg.Telegram.APIID)
	}
	if cfg.Telegram.APIHash != "secret-hash" {
		t.Errorf("Telegram.APIHash = %q, want %q (from env)", cfg.Telegram.APIHash, "secret-hash")
	}
	if cfg.Server.Port != 9000 || cfg.Telegram.PageSize != 50 {
		t.Errorf("file values lost: port = %d, page_size = %d", cfg.Server.Port, cfg.Telegram.PageSize)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, `
telegram:
  api_id: 42
  api_hash: "h"
  page_size: 50
server:
  port: 9001
archive:
  cache_ttl: 1h
scheduler:
  tasks:
    refresh_channels:
      enabled: true
      schedule: "0 */10 * * * *"
`))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Archive.CacheTTL != time.Hour {
		t.Errorf("Archive.CacheTTL = %v, want 1h", cfg.Archive.CacheTTL)
	}
	if cfg.Telegram.PageSize != 50 {
		t.Errorf("Telegram.PageSize = %d, want 50", cfg.Telegram.PageSize)
	}
	task, ok := cfg.Scheduler.Tasks["refresh_channels"]
	if !ok || !task.Enabled || task.Schedule != "0 */10 * * * *" {
		t.Errorf("Scheduler.Tasks[refresh_channels] = %+v, want enabled with custom schedule", task)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{
			name:     "missing api credentials",
			contents: "server:\n  port: 8000\n",
		},
		{
			name: "port out of range",
			contents: `
telegram:
  api_id: 1
  api_hash: "h"
server:
  port: 99999
`,
		},
		{
			name: "per_page above telegram cap",
			contents: `
telegram:
  api_id: 1
  api_hash: "h"
archive:
  max_per_page: 500
`,
		},
		{
			name: "bad log level",
			contents: `
telegram:
  api_id: 1
  api_hash: "h"
logger:
  level: loud
`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := config.LoadConfig(writeConfig(t, tc.contents)); err == nil {
				t.Errorf("LoadConfig() expected validation error, got nil")
			}
		})
	}
}
