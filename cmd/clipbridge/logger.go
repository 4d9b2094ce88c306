package main

import (
	"io"
	"log/slog"
)

// logger is the daemon's structured logger. It satisfies the Logger interfaces
// of the sync, clipboard and storage packages, and hands the underlying
// *slog.Logger to the API server.
type logger struct {
	slog *slog.Logger
}

// newLogger writes text records to w. Debug records are kept only when
// verbose is set.
func newLogger(w io.Writer, verbose bool) *logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &logger{slog: slog.New(handler)}
}

// withPrefix returns a logger tagging every record with a component name.
func (l *logger) withPrefix(component string) *logger {
	return &logger{slog: l.slog.With("component", component)}
}

func (l *logger) Debug(msg string, keysAndValues ...any) {
	l.slog.Debug(msg, keysAndValues...)
}

func (l *logger) Info(msg string, keysAndValues ...any) {
	l.slog.Info(msg, keysAndValues...)
}

func (l *logger) Error(msg string, keysAndValues ...any) {
	l.slog.Error(msg, keysAndValues...)
}
