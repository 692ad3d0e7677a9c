// Package logger provides structured logging on top of zerolog.
//
// Logs go to stderr by default so command output on stdout stays clean.
// Token material must never be logged verbatim; use Redact.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "console"
//
// # Usage
//
//	log := logger.WithComponent("tokenstore")
//	log.Info("saved", logger.Fields(logger.FieldTokenID, id))
package logger
