package util

import "log/slog"

// LogBestEffort executes a fire-and-forget side effect and logs the
// outcome. Callers must not depend on the operation having succeeded.
func LogBestEffort(fn func() error, operation string) {
	if err := fn(); err != nil {
		slog.Warn("best-effort operation failed", "op", operation, "error", err)
		return
	}
	slog.Debug("best-effort operation done", "op", operation)
}
