// Package safego provides panic-recovering wrappers for background work.
package safego

import "log/slog"

// Go launches fn in a new goroutine. If fn panics, the panic is recovered and
// logged under name rather than crashing the process.
func Go(name string, fn func()) {
	go func() {
		_ = Run(name, fn)
	}()
}

// Run calls fn on the current goroutine and returns the recovered panic value, or nil.
// Periodic jobs use it so one bad iteration does not end the loop.
func Run(name string, fn func()) (recovered any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in background work", "task", name, "panic", r)
			recovered = r
		}
	}()
	fn()
	return nil
}
