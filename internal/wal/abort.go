package wal

import (
	"log/slog"
	"os"
)

// processAbort terminates the process. It is a variable so tests can
// substitute a non-fatal stand-in and observe that the abort path was
// taken instead of actually killing the test binary.
var processAbort = func(code int) { os.Exit(code) }

// abortf logs a fatal WAL-path failure and aborts the process. An I/O
// error inside the insert-lock-protected path, or a panic inside one
// of the critical sections that mutate WAL state, cannot be safely
// propagated once other writers may have observed a partially assigned
// LSN range: the only safe response is to stop the process before
// anything after it is written.
func abortf(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Error(msg, args...)
	}
	processAbort(2)
}

// withAbortOnPanic runs fn; if fn panics, the panic is converted into a
// process abort rather than propagating. Every entry point that
// mutates insert state installs this guard.
func withAbortOnPanic(logger *slog.Logger, op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			abortf(logger, "fatal panic inside WAL critical section, aborting", "op", op, "panic", r)
		}
	}()
	fn()
}
