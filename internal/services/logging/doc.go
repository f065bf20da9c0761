// Package logging configures claimbot's structured logging.
//
// The package builds slog handlers based on configuration and can emit logs
// to multiple sinks:
//   - Console (human-friendly pretty output)
//   - File (JSON)
//
// Handlers are hot-swappable so a config reload changes sinks and level
// without replacing loggers already handed out to services.
package logging
