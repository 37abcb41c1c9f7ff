// Package observability provides structured logging for jwt-gate.
//
// Loggers are zap based; components receive a *zap.Logger in their
// constructors and name it after themselves.
package observability
