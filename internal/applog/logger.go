// Package applog holds the logger shared by the library packages.
//
// Library code never writes to stderr on its own. By default every record
// is discarded; command-line tools install a real handler with SetLogger.
package applog

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards all records. Enabled returns false so callers skip
// formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger used by tile, canvas and xcf.
// Pass nil to restore the silent default.
//
// Levels in use:
//   - [slog.LevelDebug]: tile swapping, per-object load/save progress
//   - [slog.LevelWarn]: recoverable format problems (unknown properties,
//     layers that cannot be projected)
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
