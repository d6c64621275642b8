// Package logger provides structured logging for streamkit components
// using zerolog.
//
// It supports multiple output formats (JSON, console), log level
// configuration, and component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.WithComponent("broadcaster")
//	log.Info("sink registered", logger.Fields("sink_id", id))
package logger
