package queue

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kiln/internal/services"
)

const (
	// MinBatchSize and MaxBatchSize bound the jobs created per prompt.
	MinBatchSize = 1
	MaxBatchSize = 10
)

// Queue is the in-memory job collection.
type Queue struct {
	mu    sync.Mutex
	jobs  []*Job
	index map[string]*Job

	now       func() time.Time
	listeners []func()
}

// Option customizes a Queue.
type Option func(*Queue)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// New constructs an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		index: make(map[string]*Job),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// OnChange registers fn to run after every mutation. fn runs outside the
// queue lock and must not block.
func (q *Queue) OnChange(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.listeners = append(q.listeners, fn)
	q.mu.Unlock()
}

func (q *Queue) notify() {
	q.mu.Lock()
	listeners := slices.Clone(q.listeners)
	q.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Enqueue expands one prompt into batchSize pending jobs sharing a batch id.
func (q *Queue) Enqueue(params Params, batchSize int) ([]Job, error) {
	if batchSize < MinBatchSize || batchSize > MaxBatchSize {
		return nil, services.Wrap(services.ErrValidation, "queue", "enqueue",
			fmt.Sprintf("batch size must be between %d and %d (got %d)", MinBatchSize, MaxBatchSize, batchSize), nil)
	}
	prompt := strings.TrimSpace(params.Prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, "queue", "enqueue", "prompt is empty", nil)
	}
	mediaType := strings.ToLower(strings.TrimSpace(params.MediaType))
	if mediaType == "" {
		mediaType = "image"
	}
	if mediaType != "image" && mediaType != "video" {
		return nil, services.Wrap(services.ErrValidation, "queue", "enqueue",
			fmt.Sprintf("unsupported media type %q", params.MediaType), nil)
	}

	batchID := uuid.NewString()
	now := q.now()
	created := make([]Job, 0, batchSize)

	q.mu.Lock()
	for i := 0; i < batchSize; i++ {
		job := &Job{
			ID:          uuid.NewString(),
			BatchID:     batchID,
			Prompt:      prompt,
			MediaType:   mediaType,
			ProviderID:  strings.TrimSpace(params.ProviderID),
			Model:       strings.TrimSpace(params.Model),
			AspectRatio: strings.TrimSpace(params.AspectRatio),
			Duration:    params.Duration,
			Status:      StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		q.jobs = append(q.jobs, job)
		q.index[job.ID] = job
		created = append(created, *job)
	}
	q.mu.Unlock()

	q.notify()
	return created, nil
}

// ClaimNext moves the oldest pending job to processing when fewer than
// limit jobs are processing. Counting and flipping happen under one lock.
func (q *Queue) ClaimNext(limit int) (Job, bool) {
	if limit < 1 {
		limit = 1
	}
	q.mu.Lock()
	processing := 0
	var next *Job
	for _, job := range q.jobs {
		switch job.Status {
		case StatusProcessing:
			processing++
		case StatusPending:
			if next == nil {
				next = job
			}
		}
	}
	if next == nil || processing >= limit {
		q.mu.Unlock()
		return Job{}, false
	}
	next.Status = StatusProcessing
	next.Progress = 0
	next.UpdatedAt = q.now()
	claimed := *next
	q.mu.Unlock()

	q.notify()
	return claimed, true
}

// mutateProcessing applies fn to a processing job. It reports false when
// the job is missing or not processing.
func (q *Queue) mutateProcessing(id string, fn func(*Job)) bool {
	q.mu.Lock()
	job, ok := q.index[id]
	if !ok || job.Status != StatusProcessing {
		q.mu.Unlock()
		return false
	}
	fn(job)
	job.UpdatedAt = q.now()
	q.mu.Unlock()

	q.notify()
	return true
}

// SetProgress records progress for a processing job, clamped to [0,100].
// Values lower than the current progress are accepted.
func (q *Queue) SetProgress(id string, progress int) bool {
	switch {
	case progress < 0:
		progress = 0
	case progress > 100:
		progress = 100
	}
	return q.mutateProcessing(id, func(job *Job) {
		job.Progress = progress
	})
}

// Complete moves a processing job to completed with its result URL.
func (q *Queue) Complete(id, resultURL string) bool {
	return q.mutateProcessing(id, func(job *Job) {
		job.Status = StatusCompleted
		job.ResultURL = resultURL
		job.Progress = 100
		job.Error = ""
	})
}

// SetOutputPath records where a completed job's result was saved locally.
func (q *Queue) SetOutputPath(id, path string) bool {
	q.mu.Lock()
	job, ok := q.index[id]
	if !ok || job.Status != StatusCompleted {
		q.mu.Unlock()
		return false
	}
	job.OutputPath = path
	job.UpdatedAt = q.now()
	q.mu.Unlock()

	q.notify()
	return true
}

// Fail moves a processing job to failed. Progress is left as-is.
func (q *Queue) Fail(id, message string) bool {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "generation failed without error detail"
	}
	return q.mutateProcessing(id, func(job *Job) {
		job.Status = StatusFailed
		job.Error = message
		job.ResultURL = ""
		job.OutputPath = ""
	})
}

// Cancel fails a pending job with CancelledByUserReason. It returns the job
// as it stands afterwards; a processing job is returned unchanged so the
// caller can cancel its driver.
func (q *Queue) Cancel(id string) (Job, error) {
	q.mu.Lock()
	job, ok := q.index[id]
	if !ok {
		q.mu.Unlock()
		return Job{}, services.Wrap(services.ErrNotFound, "queue", "cancel", fmt.Sprintf("job %s not found", id), nil)
	}
	changed := false
	if job.Status == StatusPending {
		job.Status = StatusFailed
		job.Error = CancelledByUserReason
		job.UpdatedAt = q.now()
		changed = true
	}
	snapshot := *job
	q.mu.Unlock()

	if changed {
		q.notify()
	}
	return snapshot, nil
}

// Get returns a copy of the job with id.
func (q *Queue) Get(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.index[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Find returns the job whose id equals or starts with prefix. Ambiguous
// prefixes are reported as not found.
func (q *Queue) Find(prefix string) (Job, bool) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return Job{}, false
	}
	if job, ok := q.Get(prefix); ok {
		return job, true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	var match *Job
	for _, job := range q.jobs {
		if strings.HasPrefix(job.ID, prefix) {
			if match != nil {
				return Job{}, false
			}
			match = job
		}
	}
	if match == nil {
		return Job{}, false
	}
	return *match, true
}

// List returns copies of jobs in creation order, optionally filtered by status.
func (q *Queue) List(statuses ...Status) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if len(statuses) > 0 && !slices.Contains(statuses, job.Status) {
			continue
		}
		out = append(out, *job)
	}
	return out
}

// Stats counts jobs per status.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var stats Stats
	for _, job := range q.jobs {
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusProcessing:
			stats.Processing++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// RemoveFinished drops completed and failed jobs and returns how many were removed.
func (q *Queue) RemoveFinished() int {
	q.mu.Lock()
	kept := q.jobs[:0]
	removed := 0
	for _, job := range q.jobs {
		if job.Status.Terminal() {
			delete(q.index, job.ID)
			removed++
			continue
		}
		kept = append(kept, job)
	}
	clear(q.jobs[len(kept):])
	q.jobs = kept
	q.mu.Unlock()

	if removed > 0 {
		q.notify()
	}
	return removed
}

// Retry re-enqueues failed jobs as new pending jobs with the same
// parameters. With no ids every failed job is retried. Unknown ids and jobs
// that are not failed are skipped.
func (q *Queue) Retry(ids ...string) []Job {
	q.mu.Lock()
	var sources []*Job
	if len(ids) == 0 {
		for _, job := range q.jobs {
			if job.Status == StatusFailed {
				sources = append(sources, job)
			}
		}
	} else {
		for _, id := range ids {
			if job, ok := q.index[id]; ok && job.Status == StatusFailed {
				sources = append(sources, job)
			}
		}
	}
	now := q.now()
	created := make([]Job, 0, len(sources))
	for _, source := range sources {
		job := &Job{
			ID:          uuid.NewString(),
			BatchID:     source.BatchID,
			Prompt:      source.Prompt,
			MediaType:   source.MediaType,
			ProviderID:  source.ProviderID,
			Model:       source.Model,
			AspectRatio: source.AspectRatio,
			Duration:    source.Duration,
			Status:      StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		q.jobs = append(q.jobs, job)
		q.index[job.ID] = job
		created = append(created, *job)
	}
	q.mu.Unlock()

	if len(created) > 0 {
		q.notify()
	}
	return created
}

// Restore replaces the queue contents with jobs loaded from a snapshot.
// Jobs persisted as processing are marked failed with InterruptedReason.
func (q *Queue) Restore(jobs []Job) int {
	restored := make([]Job, len(jobs))
	copy(restored, jobs)
	slices.SortStableFunc(restored, func(a, b Job) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	now := q.now()
	interrupted := 0
	q.mu.Lock()
	q.jobs = q.jobs[:0]
	q.index = make(map[string]*Job, len(restored))
	for i := range restored {
		job := restored[i]
		if job.ID == "" {
			continue
		}
		if _, dup := q.index[job.ID]; dup {
			continue
		}
		if status, ok := ParseStatus(string(job.Status)); ok {
			job.Status = status
		} else {
			if job.Error == "" {
				job.Error = fmt.Sprintf("unknown status %q in snapshot", job.Status)
			}
			job.Status = StatusFailed
		}
		if job.Status == StatusProcessing {
			job.Status = StatusFailed
			job.Error = InterruptedReason
			job.ResultURL = ""
			job.OutputPath = ""
			job.UpdatedAt = now
			interrupted++
		}
		stored := job
		q.jobs = append(q.jobs, &stored)
		q.index[stored.ID] = &stored
	}
	q.mu.Unlock()

	q.notify()
	return interrupted
}
