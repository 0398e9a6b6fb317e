// Package logging wires the process-wide zerolog logger with env-driven
// defaults.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the root logger.
type Options struct {
	Level   string
	Format  string // "json" or "console"
	Service string
}

// FromEnv reads LOG_LEVEL / LOG_FORMAT with sensible defaults.
func FromEnv() Options {
	return Options{
		Level:   strings.ToLower(os.Getenv("LOG_LEVEL")),
		Format:  strings.ToLower(os.Getenv("LOG_FORMAT")),
		Service: "clientpin",
	}
}

// New builds the root logger. Console output is reserved for local runs.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if opts.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	logger = logger.Level(level).With().Timestamp().Str("service", opts.Service).Logger()
	return logger
}
