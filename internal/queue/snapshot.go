package queue

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"kiln/internal/logging"
)

// DefaultSnapshotLimit is the number of most recent jobs kept in a snapshot.
const DefaultSnapshotLimit = 500

// SnapshotStore persists the job history.
type SnapshotStore interface {
	Load(ctx context.Context) ([]Job, error)
	Save(ctx context.Context, jobs []Job) error
	Close() error
}

// TrimSnapshot returns the limit most recent jobs by creation time, oldest first.
func TrimSnapshot(jobs []Job, limit int) []Job {
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}
	out := slices.Clone(jobs)
	slices.SortStableFunc(out, func(a, b Job) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// SnapshotWriter mirrors queue mutations to a SnapshotStore. Bursts of
// mutations coalesce into one write.
type SnapshotWriter struct {
	queue  *Queue
	store  SnapshotStore
	limit  int
	logger *slog.Logger

	pending chan struct{}
	mu      sync.Mutex
}

// NewSnapshotWriter wires a writer to q. Call Run to start writing.
func NewSnapshotWriter(q *Queue, store SnapshotStore, limit int, logger *slog.Logger) *SnapshotWriter {
	w := &SnapshotWriter{
		queue:   q,
		store:   store,
		limit:   limit,
		logger:  logging.NewComponentLogger(logger, "snapshot"),
		pending: make(chan struct{}, 1),
	}
	q.OnChange(w.markDirty)
	return w
}

func (w *SnapshotWriter) markDirty() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

// Run writes snapshots until ctx ends, then performs a final flush.
func (w *SnapshotWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if err := w.Flush(context.WithoutCancel(ctx)); err != nil {
				logging.WarnWithContext(w.logger, "final snapshot write failed", "snapshot_error",
					logging.Error(err),
					logging.String(logging.FieldImpact, "recent job history may be missing after restart"),
				)
			}
			return
		case <-w.pending:
			if err := w.Flush(ctx); err != nil {
				logging.WarnWithContext(w.logger, "snapshot write failed", "snapshot_error",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the snapshot backend"),
					logging.String(logging.FieldImpact, "job history not persisted until the next successful write"),
				)
			}
		}
	}
}

// Flush writes the current queue contents synchronously.
func (w *SnapshotWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	jobs := TrimSnapshot(w.queue.List(), w.limit)
	return w.store.Save(ctx, jobs)
}

// LoadInto restores q from store and returns the number of interrupted jobs.
func LoadInto(ctx context.Context, q *Queue, store SnapshotStore, limit int) (int, error) {
	jobs, err := store.Load(ctx)
	if err != nil {
		return 0, err
	}
	return q.Restore(TrimSnapshot(jobs, limit)), nil
}
