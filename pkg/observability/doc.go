// Package observability provides structured logging, Prometheus metrics,
// health probes, and graceful shutdown for the portal service.
//
// Logging uses a thin wrapper over log/slog emitting JSON. Metrics cover
// HTTP traffic plus the authorization-specific series: decision counters
// per enforcement surface, webhook delivery results, and the session
// principal cache hit rate (which bounds role-claim staleness).
package observability
