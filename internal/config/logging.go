package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger and installs it as the slog default.
// Human-readable text goes to stderr; the same records are appended as JSON to
// logFile so pipeline runs can be grepped by video_id afterwards. If logFile
// cannot be opened the logger degrades to stderr only.
func SetupLogger(service, logFile string, level slog.Level) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: level}
	handlers := []slog.Handler{slog.NewTextHandler(os.Stderr, opts)}

	cleanup := func() error { return nil }
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Warn("log file unavailable, logging to stderr only", "file", logFile, "error", err)
	} else {
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
		cleanup = file.Close
	}

	logger := slog.New(slogmulti.Fanout(handlers...)).With("service", service)
	slog.SetDefault(logger)
	return logger, cleanup
}

// NewLoggerWithWriters creates the same fan-out logger over arbitrary writers.
// Used by tests to assert on both outputs.
func NewLoggerWithWriters(text, jsonOut io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(text, opts),
		slog.NewJSONHandler(jsonOut, opts),
	))
}
