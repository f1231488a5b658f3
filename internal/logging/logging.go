// Package logging builds zerolog loggers from configuration.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a logger writing to the configured output.
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, outputWriter(cfg.Output))
}

// NewWithWriter creates a logger writing to w. An unknown level falls back to info.
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var zl zerolog.Logger
	if cfg.Format == "console" {
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		})
	} else {
		zl = zerolog.New(w)
	}
	zl = zl.Level(level)
	if cfg.Timestamp {
		zl = zl.With().Timestamp().Logger()
	}
	return zl
}

func outputWriter(output string) io.Writer {
	if output == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}
