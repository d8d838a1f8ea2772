// Package logger provides structured logging for the Kinetic simulator.
//
// This package configures log/slog:
//
//   - logger.go: handler construction and the dynamic level
//   - context.go: context propagation of loggers, connection and trace IDs
//   - redact.go: sensitive data redaction
//
// Components receive a *slog.Logger; connection-scoped loggers carry
// conn_id and trace_id attributes.
package logger
