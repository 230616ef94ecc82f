// Package logging assembles structured slog loggers and formatting helpers used
// across Galleria.
//
// It owns the console and JSON handlers, the per-run log file with its
// galleria.log pointer, retention of old run logs, and context-aware helpers
// that tag lines with gallery IDs, orchestrator states, and run IDs. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
