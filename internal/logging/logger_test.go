package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomgoth/hrv-dashboard/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hrvdash.log")

	logger, closer, err := New(config.LoggingConfig{Level: "info", File: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("series loaded", "metric", "rmssd", "count", 12)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "series loaded") || !strings.Contains(out, "metric=rmssd") {
		t.Errorf("Unexpected log output %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("Debug record written at info level")
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, _, err := New(config.LoggingConfig{Level: "verbose"}); err == nil {
		t.Error("Expected error for invalid level")
	}
}

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelInfo, true))
	logger.Info("ready")

	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"msg":"ready"`) {
		t.Errorf("Expected a json record, got %q", buf.String())
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelInfo, false))

	w := AccessLog(logger)
	line := `127.0.0.1 - - [06/May/2026:08:00:00 +0000] "GET /health HTTP/1.1" 200 20 "" ""` + "\n"
	n, err := w.Write([]byte(line))
	if err != nil || n != len(line) {
		t.Fatalf("Write returned %d, %v", n, err)
	}
	if !strings.Contains(buf.String(), "component=http") || !strings.Contains(buf.String(), "GET /health") {
		t.Errorf("Unexpected access log record %q", buf.String())
	}
}
