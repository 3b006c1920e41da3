// Package log wraps go-kit/log behind a small leveled Logger interface, a
// logfmt-backed default implementation, and a no-op implementation so
// components never need a nil check.
package log

import (
	"os"

	kitlog "github.com/go-kit/log"
)

// Logger is the leveled logging interface every constructor in this module
// accepts. Keyvals follow go-kit's alternating key/value convention.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

type kitLogger struct {
	base kitlog.Logger
}

// NewLogfmtLogger returns a Logger that writes timestamped logfmt lines
// to os.Stderr.
func NewLogfmtLogger() Logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	base = kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)
	return &kitLogger{base: base}
}

func (l *kitLogger) Debug(msg string, keyvals ...any) { l.log("debug", msg, keyvals...) }
func (l *kitLogger) Info(msg string, keyvals ...any)  { l.log("info", msg, keyvals...) }
func (l *kitLogger) Error(msg string, keyvals ...any) { l.log("error", msg, keyvals...) }

func (l *kitLogger) With(keyvals ...any) Logger {
	return &kitLogger{base: kitlog.With(l.base, keyvals...)}
}

func (l *kitLogger) log(level, msg string, keyvals ...any) {
	args := append([]any{"level", level, "msg", msg}, keyvals...)
	_ = l.base.Log(args...)
}

type nopLogger struct{}

// NewNopLogger returns a Logger that discards everything, for call
// sites with no logger supplied.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any)  {}
func (nopLogger) Info(string, ...any)   {}
func (nopLogger) Error(string, ...any)  {}
func (nopLogger) With(...any) Logger    { return nopLogger{} }
