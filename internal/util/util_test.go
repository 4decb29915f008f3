package util

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tushare.log")
	logger := NewLoggerWith(LogOptions{Level: "debug", Format: "text", File: path, MaxSizeMB: 1})
	logger.Debug("cache refreshed", "table", "etf_symbols")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "cache refreshed") || !strings.Contains(line, "table=etf_symbols") {
		t.Errorf("log line = %q, want message and text-format attribute", line)
	}
}

func TestNewLoggerLevelFilters(t *testing.T) {
	logger := NewLogger("error")
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at error level")
	}
	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at error level")
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	// The first token is available immediately.
	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("first Wait should not block")
	}
}

func TestRateLimiterCancelled(t *testing.T) {
	rl := NewRateLimiter(1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *RateLimiter
	if err := nilLimiter.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter Wait = %v, want nil", err)
	}
	rl := NewRateLimiter(0)
	for i := 0; i < 5; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("disabled limiter Wait = %v", err)
		}
	}
}
