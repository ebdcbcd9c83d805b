package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestJSONOutputFiltersByLevel(t *testing.T) {
	defer func() { defaultLogger = nil }()
	var buf bytes.Buffer
	InitWriter(&buf, "info", "json")

	Debug("hidden %d", 1)
	Info("goal confirmed in match %s", "1001")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "goal confirmed in match 1001" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["level"] != "INFO" {
		t.Errorf("level = %v", rec["level"])
	}
}

func TestTextOutputIncludesSource(t *testing.T) {
	defer func() { defaultLogger = nil }()
	var buf bytes.Buffer
	InitWriter(&buf, "debug", "text")

	Warn("price missing")

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "logger_test.go") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestUninitializedIsNoop(t *testing.T) {
	defaultLogger = nil
	Info("nothing happens")
	Error("still nothing")
}
