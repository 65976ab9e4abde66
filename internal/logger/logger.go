package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters (lumberjack semantics).
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where and how the daemon logs.
// If File is empty, logs go to stderr with level colorized output.
type Config struct {
	File       string // log file path; empty means stderr
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
	Level      string // debug, info, warn, error (default info)
	Color      bool   // colorize level names (stderr output only)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a slog.Logger for the daemon. The returned closer flushes and
// closes the underlying log file; callers must Close it on shutdown.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	if cfg.File == "" {
		var h slog.Handler
		if cfg.Color {
			h = NewColorTextHandler(os.Stderr, opts, true)
		} else {
			h = slog.NewTextHandler(os.Stderr, opts)
		}
		return slog.New(h), nopCloser{}, nil
	}

	w := &lj.Logger{
		Filename:   cfg.File,
		MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
	return slog.New(slog.NewTextHandler(w, opts)), w, nil
}

// ParseLevel maps a config string to a slog level. Unknown values fall
// back to info.
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

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
