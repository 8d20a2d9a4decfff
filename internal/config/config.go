// Package config manages application configuration from config.yaml,
// ARCHIVE_* environment variables, and built-in defaults.
package config

import (
	"fmt"
	"time"
)

// Config defines all configuration parameters for the archive service.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Server    ServerConfig    `mapstructure:"server"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"             validate:"required"`
	Port            int           `mapstructure:"port"             validate:"required,min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// TelegramConfig holds MTProto client credentials and session location.
// APIID and APIHash come from https://my.telegram.org.
type TelegramConfig struct {
	APIID          int           `mapstructure:"api_id"          validate:"required,gt=0"`
	APIHash        string        `mapstructure:"api_hash"        validate:"required"`
	SessionFile    string        `mapstructure:"session_file"    validate:"required"`
	PageSize       int           `mapstructure:"page_size"       validate:"min=1,max=100"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s"`
}

// DatabaseConfig controls the SQLite connection.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ArchiveConfig controls caching and read pagination behavior.
type ArchiveConfig struct {
	CacheTTL       time.Duration `mapstructure:"cache_ttl"        validate:"min=1m"`
	DefaultPerPage int           `mapstructure:"default_per_page" validate:"min=1,max=100"`
	MaxPerPage     int           `mapstructure:"max_per_page"     validate:"min=1,max=100"`
}

// TaskConfig enables a scheduled task and assigns its cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
