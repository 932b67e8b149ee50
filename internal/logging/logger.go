// Package logging sets up the process-wide slog logger from
// configuration: a console handler plus optional rotated file output.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/syntrixbase/syntrix-go/internal/config"
)

// Initialize builds the logger from cfg and installs it as the slog
// default. It returns a close function for the file sink, nil-safe to
// call in all cases.
func Initialize(cfg config.LoggingConfig) func() error {
	logger, closeFn := NewLogger(cfg)
	slog.SetDefault(logger)
	slog.Debug("Logging initialized", "level", cfg.Level, "format", cfg.Format, "file", cfg.File)
	return closeFn
}

// NewLogger creates a logger without touching the global default.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, func() error) {
	level := ParseLevel(cfg.Level)
	handlers := []slog.Handler{createHandler(os.Stderr, cfg.Format, level)}
	closeFn := func() error { return nil }

	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.Rotation.MaxSize,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAge,
			Compress:   cfg.Rotation.Compress,
		}
		handlers = append(handlers, createHandler(file, cfg.Format, level))
		closeFn = file.Close
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closeFn
	}
	return slog.New(newMultiHandler(handlers...)), closeFn
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
