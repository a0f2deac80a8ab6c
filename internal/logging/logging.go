// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely logs are written.
type Options struct {
	Level string
	// File enables an additional rotated JSON log file when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Writer     io.Writer
}

// Init installs the default slog logger and returns it. Console output is
// human readable text; the optional file output is JSON.
func Init(opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)

	console := opts.Writer
	if console == nil {
		console = os.Stderr
	}

	var handler slog.Handler = slog.NewTextHandler(console, &slog.HandlerOptions{Level: level})

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		fileHandler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level})
		handler = fanout{handler, fileHandler}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// For returns a logger scoped to a component.
func For(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
