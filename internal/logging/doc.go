// Package logging assembles structured slog loggers and formatting helpers used
// across the console.
//
// It owns the configurable console/JSON handlers, the rotating JSON log file,
// and context-aware helpers so workflow code can tag log lines with session
// IDs, operation IDs, stages, and correlation IDs. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
package logging
