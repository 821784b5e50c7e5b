package common

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record; Enabled returns false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger replaces the logger shared by every engine package.
// Passing nil restores the silent default. Safe for concurrent use.
//
// Levels used by the engine:
//   - slog.LevelDebug: per-frame diagnostics (transitions, submissions)
//   - slog.LevelInfo: lifecycle events (device opened, passes initialized)
//   - slog.LevelWarn: recoverable issues (late fences, culled passes)
//   - slog.LevelError: fatal conditions (device lost)
//
// Parameters:
//   - l: the logger to install, or nil
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the logger shared by every engine package.
//
// Returns:
//   - *slog.Logger: the current logger (never nil)
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
