// Package daemon coordinates the long-running kiln process.
//
// It wires configuration, the in-memory job queue and its snapshot store,
// the provider registry, the workflow manager, and the actor pipeline into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon restores job history on start, exposes the job, provider and
// actor operations used by the IPC server and the HTTP API, and owns the
// startup preflight report.
//
// Keep orchestration logic here: generation and registration steps live in
// their respective packages while the daemon focuses on startup, shutdown,
// and high level coordination.
package daemon
