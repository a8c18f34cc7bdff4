package testsupport

import (
	"context"
	"slices"
	"sync"
	"testing"

	"kiln/internal/config"
	"kiln/internal/queue"
)

// MustOpenStore opens the SQLite snapshot store for cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.SQLiteStore {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store, err := queue.OpenSQLite(cfg.SnapshotDBPath())
	if err != nil {
		t.Fatalf("queue.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MemoryStore is an in-memory queue.SnapshotStore that records saves.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  []queue.Job
	saves int
}

var _ queue.SnapshotStore = (*MemoryStore)(nil)

// NewMemoryStore returns a store preloaded with jobs.
func NewMemoryStore(jobs ...queue.Job) *MemoryStore {
	return &MemoryStore{jobs: slices.Clone(jobs)}
}

func (m *MemoryStore) Load(context.Context) ([]queue.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.jobs), nil
}

func (m *MemoryStore) Save(_ context.Context, jobs []queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = slices.Clone(jobs)
	m.saves++
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Saves returns the number of Save calls.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Jobs returns the last saved snapshot.
func (m *MemoryStore) Jobs() []queue.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.jobs)
}
