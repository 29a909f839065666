// Package observability provides an OpenTelemetry metrics extension for
// tempo. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for job creation, start, completion, failure, retry,
// cancellation, and scheduling index repair events.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
