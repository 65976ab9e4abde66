package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestNew_StderrWhenNoFile(t *testing.T) {
	lg, closer, err := New(Config{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if lg == nil {
		t.Fatalf("expected logger")
	}
	// closing the stderr logger must be harmless
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNew_FileCreatesLogAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.log")
	lg, closer, err := New(Config{File: path})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	lg.Info("hello", "pid", 42)
	w, ok := closer.(*lj.Logger)
	if !ok {
		t.Fatalf("closer is not lumberjack.Logger")
	}
	if w.MaxSize != DefaultMaxSizeMB || w.MaxBackups != DefaultMaxBackups || w.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", w.MaxSize, w.MaxBackups, w.MaxAge)
	}
	_ = closer.Close()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(b), "hello") {
		t.Fatalf("log file missing message: %q", b)
	}
}

func TestNew_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	_, closer, err := New(Config{File: path, MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	w := closer.(*lj.Logger)
	if w.MaxSize != 1 || w.MaxBackups != 9 || w.MaxAge != 11 || !w.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", w.MaxSize, w.MaxBackups, w.MaxAge, w.Compress)
	}
	_ = closer.Close()
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestColorTextHandler_PrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	lg := slog.New(h)
	lg.Warn("disk almost full")
	out := buf.String()
	if !strings.Contains(out, "\033[33m") {
		t.Fatalf("expected yellow escape for warn, got %q", out)
	}
	if !strings.Contains(out, "disk almost full") {
		t.Fatalf("expected message in output, got %q", out)
	}
	// level filtering still applies
	buf.Reset()
	h2 := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}, false)
	if h2.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should be disabled at error level")
	}
}
