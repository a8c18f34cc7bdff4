// Package workflow drives queued generation jobs to a terminal state.
//
// The Manager ticks on a fixed interval, claims pending jobs from the queue up
// to the configured concurrency limit, and starts one Session per claimed job
// with its own cancellable context. A Session submits the job through the
// provider adapter resolved from the registry, polls the returned task until
// it completes, fails, or exhausts the media-type polling budget, and writes
// the outcome back to the queue.
//
// Cancelling a processing job cancels its Session context; stopping the
// Manager cancels every Session and fails their jobs with "daemon stopped".
// Terminal transitions publish notifications and update Prometheus metrics.
package workflow
