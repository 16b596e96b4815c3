package logging

import (
	"log/slog"
	"sync/atomic"
)

// traceOn is set by Init when the server log level is TRACE.
var traceOn atomic.Bool

// SetTrace turns per-message tracing (map session traffic) on or off.
func SetTrace(on bool) { traceOn.Store(on) }

// Trace logs at DEBUG level when tracing is on.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if traceOn.Load() {
		logger.Debug(msg, args...)
	}
}
