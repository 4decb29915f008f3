// Package util provides shared utility functions for logging and rate
// limiting.
package util

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions selects where and how log records are written.
type LogOptions struct {
	Level      string
	Format     string // "json" (default) or "text"
	File       string // empty means stdout
	MaxSizeMB  int
	MaxBackups int
}

// NewLogger creates a structured logger using log/slog at the specified
// level. Supported levels: "debug", "info", "warn", "error". Defaults to
// "info" if the level string is not recognised.
func NewLogger(level string) *slog.Logger {
	return NewLoggerWith(LogOptions{Level: level})
}

// NewLoggerWith builds a logger from opts. A non-empty File is written
// through a rotating lumberjack writer.
func NewLoggerWith(opts LogOptions) *slog.Logger {
	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
			LocalTime:  true,
		}
	}
	return slog.New(newHandler(out, opts.Format, ParseLevel(opts.Level)))
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, hopts)
	}
	return slog.NewJSONHandler(w, hopts)
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetDefault configures the provided logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
