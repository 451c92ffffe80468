// Package logging holds the logger shared by every tessel package.
package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip
// attribute formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// Set installs l as the logger for the pipeline, the device layer and the
// batch layer. Passing nil restores the silent default.
//
// Levels in use:
//   - [slog.LevelDebug]: per-batch and per-frame diagnostics
//   - [slog.LevelInfo]: device negotiation, backend selection
//   - [slog.LevelWarn]: dropped commands, backend fallback, skipped frames
func Set(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Get returns the current logger. It is safe for concurrent use.
func Get() *slog.Logger {
	return loggerPtr.Load()
}

// ParseLevel maps a config string to a slog level. Unknown strings map to
// info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
