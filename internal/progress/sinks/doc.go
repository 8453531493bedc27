// Package sinks implements progress consumers: structured logging,
// Prometheus collectors, and an in-memory run snapshot for the ops API.
// Each satisfies progress.Sink.
package sinks
