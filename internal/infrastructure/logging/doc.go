// Package logging provides structured logging for Feeder Core.
//
// It wraps log/slog so every entry carries the service name and build
// version, and so components can derive child loggers:
//
//	logger := logging.New(cfg.Logging, version)
//	engineLog := logger.Component("feeding")
//	engineLog.Info("feed decided", "device_id", id, "duration_ms", ms)
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Never log bearer tokens or password material.
package logging
