// Package logging builds the process-wide slog logger. Both binaries log
// JSON lines to stdout; the collector keys on the "service" attribute to
// tell api and worker streams apart.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// NewJSONLogger returns the logger for a named service, filtering at the
// given level ("debug", "info", "warn", "error"; unknown values mean info).
func NewJSONLogger(service, level string) *slog.Logger {
	return New(os.Stdout, service, level)
}

// New is the writer-injectable constructor used by tests.
func New(w io.Writer, service, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With("service", service)
}
