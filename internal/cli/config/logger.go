package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// NewLogger builds the process logger. With log_file set, records are
// appended there; otherwise they go to fallback, which may be nil to discard.
// The returned close function must be called on exit.
func NewLogger(cfg *Config, fallback io.Writer) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	noop := func() error { return nil }

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return slog.New(slog.NewTextHandler(f, opts)), f.Close, nil
	}

	if fallback == nil {
		return slog.New(slog.DiscardHandler), noop, nil
	}
	return slog.New(slog.NewTextHandler(fallback, opts)), noop, nil
}
