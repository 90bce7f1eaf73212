// Package logging provides structured logging for Gray Logic Edge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the supervisor.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stderr"   # stderr, stdout
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("engine started", "pid", 4242)
//	logger.Error("engine config test failed", "error", err)
//
// Never log the MQTT password or the InfluxDB token.
package logging
