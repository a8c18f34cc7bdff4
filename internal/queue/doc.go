// Package queue owns the canonical collection of generation jobs.
//
// Queue is an in-memory, insertion-ordered list guarded by one mutex. The
// claim that moves a job from pending to processing counts and flips under
// that lock, so the concurrency limit holds and no job is dispatched twice.
// Progress and terminal writes apply only to processing jobs, which gives
// every job exactly one terminal transition.
//
// Every mutation is mirrored to a SnapshotStore (SQLite by default, Redis
// optionally) holding the most recent jobs. The snapshot is history, not a
// durable work queue: jobs found processing on load are marked failed.
package queue
