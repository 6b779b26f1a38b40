// Package config provides centralized configuration management for the importer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Import     ImportConfig
	Dictionary DictionaryConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds storage settings.
//
// The importer runs against an embedded SQLite database by default, which
// matches its single-writer workload. A PostgreSQL DSN can be supplied
// instead for shared deployments.
type DatabaseConfig struct {
	// Driver selects the storage backend: "sqlite" or "postgres" (default: sqlite)
	Driver string `env:"DB_DRIVER" default:"sqlite"`

	// URL is the connection string: a file path for sqlite, or a
	// postgres:// DSN. Supports both DATABASE_URL and DB_URL env vars.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" default:"registry.db"`
}

// ImportConfig holds CSV import processing settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 2GB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"2147483648"`

	// Workers is the parse worker pool size; 0 means one per CPU (default: 0)
	Workers int `env:"IMPORT_WORKERS" default:"0"`

	// BatchSize is the number of records written per transaction (default: 50000)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"50000"`

	// MaxConcurrent is the maximum number of queued imports (default: 2).
	// The write phase itself is always single-threaded against the store.
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single file import (default: 30m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"30m"`
}

// DictionaryConfig holds categorical-dictionary settings.
type DictionaryConfig struct {
	// UncuratedYears lists years whose extracts have not been reviewed
	// against the canonical vocabularies. Dictionary entries seen only in
	// these years are flagged for downstream display.
	UncuratedYears []int `env:"DICT_UNCURATED_YEARS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
