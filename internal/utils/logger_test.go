package utils

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	debug := NewLogger("DEBUG", false)
	if !debug.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("debug level should enable debug records")
	}

	warn := NewLogger("warn", true)
	if warn.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("warn level should suppress info records")
	}

	fallback := NewLogger("verbose", false)
	if !fallback.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("unknown level should fall back to info")
	}
	if fallback.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("info fallback should suppress debug records")
	}
}
