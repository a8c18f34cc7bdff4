// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates queue, workflow and registry models into
// transport-friendly DTOs that the CLI and other consumers can render without
// coupling to internal types.
//
// # Key Types
//
// Job: transport representation of a generation job with progress, result
// URL and failure reason.
//
// WorkflowStatus: scheduler running state, concurrency, live sessions and
// queue stats.
//
// DaemonStatus: aggregated runtime information including dependencies and
// preflight checks.
//
// Provider: registered adapter descriptor with provenance and models.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers. Status
// values are exposed as lowercase strings. Timestamps use RFC3339 with
// milliseconds.
package api
