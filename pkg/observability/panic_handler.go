package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers a panic in the calling goroutine and logs it with
// the stack trace. Meant for background goroutines (the ingest watcher,
// scheduled jobs) where an unhandled panic would take down the process.
//
//	defer observability.RecoverPanic(logger, "dataset watcher")
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("panic recovered")
	}
}
