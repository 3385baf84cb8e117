// Package logging defines the small leveled logger interface every other
// package in this module accepts: a tiny Logger/Level pair rather than a
// dependency on any one external logging library, so callers can plug in
// whatever they already use.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Level is a log severity, mirroring kgo.LogLevel's ordering.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the minimal leveled logging contract used throughout this
// module (pkg/registry and pkg/input each also define their own even
// smaller Warn-only Logger, satisfied trivially by any value of this
// type, so those packages stay leaf dependencies that don't need to
// import this one).
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// slogLogger is the default Logger, backed by log/slog.
type slogLogger struct {
	inner *slog.Logger
}

// NewSlog wraps an *slog.Logger as a Logger. Pass nil to get a logger
// writing text-formatted records to stderr at Info level.
func NewSlog(inner *slog.Logger) Logger {
	if inner == nil {
		inner = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slogLogger{inner: inner}
}

func (l slogLogger) Debug(msg string, kv ...any) { l.inner.Debug(msg, kv...) }
func (l slogLogger) Info(msg string, kv ...any)  { l.inner.Info(msg, kv...) }
func (l slogLogger) Warn(msg string, kv ...any)  { l.inner.Warn(msg, kv...) }
func (l slogLogger) Error(msg string, kv ...any) { l.inner.Error(msg, kv...) }

// Nop discards everything. Useful as a default in constructors and in
// tests that don't care about log output.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}

// contextKey is unexported so no other package can collide with it when
// stashing a Logger on a context.
type contextKey struct{}

// WithContext returns a context carrying log, retrievable with FromContext.
func WithContext(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext returns the Logger stashed by WithContext, or Nop if none.
func FromContext(ctx context.Context) Logger {
	if log, ok := ctx.Value(contextKey{}).(Logger); ok {
		return log
	}
	return Nop{}
}
