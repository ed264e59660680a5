// Package logging provides structured logging for casa-core.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same shape:
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// These are operator diagnostics. The bus traffic log shown to dashboard
// users lives in internal/eventlog and is mirrored here at debug level.
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//	logger.Error("failed to connect", "error", err)
package logging
