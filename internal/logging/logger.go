// Package logging builds the process logger: slog to stdout and, when
// configured, to a log file as well.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tomgoth/hrv-dashboard/internal/config"
)

// ParseLevel maps debug, info, warn and error to a slog level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// New returns a logger writing to stdout and cfg.File. The returned closer
// releases the file and is never nil.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(f, os.Stdout)
		closer = f
	}

	return slog.New(newHandler(w, level, cfg.JSON)), closer, nil
}

func newHandler(w io.Writer, level slog.Level, asJSON bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// AccessLog adapts logger to the io.Writer the access log handler wants.
// Every write becomes one info record.
func AccessLog(logger *slog.Logger) io.Writer {
	return &slogWriter{logger: logger}
}

type slogWriter struct {
	logger *slog.Logger
}

func (s *slogWriter) Write(p []byte) (int, error) {
	s.logger.Info(strings.TrimRight(string(p), "\n"), "component", "http")
	return len(p), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
