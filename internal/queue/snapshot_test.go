package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"kiln/internal/queue"
	"kiln/internal/testsupport"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created := time.Date(2026, 2, 3, 4, 5, 6, 789, time.UTC)
	jobs := []queue.Job{
		{
			ID: "j1", BatchID: "b1", Prompt: "a fox", MediaType: "video", ProviderID: "replicate",
			Model: "m", AspectRatio: "16:9", Duration: 8, Status: queue.StatusCompleted,
			Progress: 100, ResultURL: "https://r/1.mp4", OutputPath: "/out/kiln-j1.mp4", CreatedAt: created, UpdatedAt: created.Add(time.Minute),
		},
		{
			ID: "j2", BatchID: "b1", Prompt: "a fox", MediaType: "video", Status: queue.StatusFailed,
			Progress: 35, Error: "quota", CreatedAt: created.Add(time.Second), UpdatedAt: created.Add(time.Second),
		},
	}
	if err := store.Save(ctx, jobs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(loaded))
	}
	if loaded[0].ID != "j1" || loaded[0].ResultURL != "https://r/1.mp4" || loaded[0].OutputPath != "/out/kiln-j1.mp4" || !loaded[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected first job: %+v", loaded[0])
	}
	if loaded[1].ProviderID != "" || loaded[1].Error != "quota" || loaded[1].Progress != 35 {
		t.Fatalf("unexpected second job: %+v", loaded[1])
	}

	if err := store.Save(ctx, jobs[1:]); err != nil {
		t.Fatalf("Save replacement: %v", err)
	}
	loaded, _ = store.Load(ctx)
	if len(loaded) != 1 || loaded[0].ID != "j2" {
		t.Fatalf("Save must replace the snapshot, got %+v", loaded)
	}
}

func TestSQLiteStoreRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	path := store.Path()
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := queue.OpenSQLite(path); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestTrimSnapshotKeepsMostRecent(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jobs := make([]queue.Job, 0, 520)
	for i := 519; i >= 0; i-- {
		jobs = append(jobs, queue.Job{ID: fmt.Sprintf("j%03d", i), CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}

	trimmed := queue.TrimSnapshot(jobs, queue.DefaultSnapshotLimit)
	if len(trimmed) != 500 {
		t.Fatalf("expected 500 jobs, got %d", len(trimmed))
	}
	if trimmed[0].ID != "j020" || trimmed[499].ID != "j519" {
		t.Fatalf("expected oldest 20 dropped, got first=%s last=%s", trimmed[0].ID, trimmed[499].ID)
	}
}

func TestSnapshotWriterMirrorsQueue(t *testing.T) {
	store := testsupport.NewMemoryStore()
	q := queue.New()
	writer := queue.NewSnapshotWriter(q, store, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		writer.Run(ctx)
		close(done)
	}()

	if _, err := q.Enqueue(queue.Params{Prompt: "p"}, 3); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	cancel()
	<-done

	saved := store.Jobs()
	if len(saved) != 2 {
		t.Fatalf("expected snapshot capped at 2, got %d", len(saved))
	}
	if store.Saves() == 0 {
		t.Fatal("expected at least one save")
	}
}

func TestLoadIntoRestoresQueue(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := testsupport.NewMemoryStore(
		queue.Job{ID: "x", Prompt: "p", Status: queue.StatusProcessing, CreatedAt: base},
		queue.Job{ID: "y", Prompt: "p", Status: queue.StatusPending, CreatedAt: base.Add(time.Second)},
	)
	q := queue.New()
	interrupted, err := queue.LoadInto(context.Background(), q, store, 500)
	if err != nil {
		t.Fatalf("LoadInto: %v", err)
	}
	if interrupted != 1 {
		t.Fatalf("expected one interrupted job, got %d", interrupted)
	}
	if job, _ := q.Get("x"); job.Error != queue.InterruptedReason {
		t.Fatalf("unexpected restored job: %+v", job)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	url := os.Getenv("KILN_TEST_REDIS_URL")
	if url == "" {
		t.Skip("KILN_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	key := fmt.Sprintf("kiln:test:%d", time.Now().UnixNano())
	store, err := queue.OpenRedis(ctx, url, key)
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	defer store.Close()

	if jobs, err := store.Load(ctx); err != nil || len(jobs) != 0 {
		t.Fatalf("expected empty snapshot, got %v (%v)", jobs, err)
	}
	if err := store.Save(ctx, []queue.Job{{ID: "r1", Prompt: "p", Status: queue.StatusPending}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	jobs, err := store.Load(ctx)
	if err != nil || len(jobs) != 1 || jobs[0].ID != "r1" {
		t.Fatalf("unexpected loaded jobs %v (%v)", jobs, err)
	}
}
