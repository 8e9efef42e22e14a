// Package logging provides structured logging for the BleBox bridge.
//
// It wraps log/slog. Every entry carries the service name and version;
// output is JSON for production or text for development, filtered by level.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("device registered", "device_id", id, "address", addr)
//
// *Logger satisfies the small Logger interfaces taken by the bridge
// components, so it is passed to them directly.
package logging
