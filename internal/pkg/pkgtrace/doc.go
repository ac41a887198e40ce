// Package pkgtrace wires OpenTelemetry tracing.
//
// Without Init the global no-op provider is used, so Start and End are always
// safe to call from business code.
package pkgtrace
