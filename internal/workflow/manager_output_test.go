package workflow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"kiln/internal/logging"
	"kiln/internal/metrics"
	"kiln/internal/notifications"
	"kiln/internal/provider"
	"kiln/internal/queue"
	"kiln/internal/registry"
	"kiln/internal/testsupport"
	"kiln/internal/workflow"
)

type savingFixture struct {
	manager  *workflow.Manager
	queue    *queue.Queue
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	outDir   string
	tempDir  string
	fileAuth chan string
}

// newSavingFixture serves a TaskHub task that completes on submit with a
// same-origin result URL answered with fileStatus.
func newSavingFixture(t *testing.T, fileStatus int) *savingFixture {
	t.Helper()
	fx := &savingFixture{fileAuth: make(chan string, 1)}
	png := testsupport.PNG()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/tasks":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"task_id": "t-1",
				"status":  "success",
				"result":  map[string]any{"url": srv.URL + "/files/t-1"},
			})
		case r.URL.Path == "/files/t-1":
			select {
			case fx.fileAuth <- r.Header.Get("Authorization"):
			default:
			}
			if fileStatus != http.StatusOK {
				http.Error(w, "gone", fileStatus)
				return
			}
			_, _ = w.Write(png)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithProvider("taskhub", "secret"))
	cfg.Generation.BaseURL = srv.URL
	cfg.Output.Dir = filepath.Join(t.TempDir(), "renders")
	fx.outDir = cfg.Output.Dir
	fx.tempDir = cfg.DownloadDir()

	fx.queue = queue.New()
	fx.notifier = &recordingNotifier{}
	fx.metrics = metrics.New(prometheus.NewRegistry())
	reg := registry.New(registry.WithBuiltins(provider.NewMock(), provider.NewTaskHub()))
	fx.manager = workflow.NewManager(cfg, fx.queue, reg,
		workflow.WithNotifier(fx.notifier),
		workflow.WithMetrics(fx.metrics),
		workflow.WithLogger(logging.NewNop()),
		workflow.WithPollInterval(5*time.Millisecond),
	)
	return fx
}

func (fx *savingFixture) runOne(t *testing.T) queue.Job {
	t.Helper()
	jobs, err := fx.manager.Submit(workflow.SubmitRequest{Prompt: "a fox at dawn", BatchSize: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if started := fx.manager.Tick(context.Background()); started != 1 {
		t.Fatalf("tick started %d sessions, want 1", started)
	}
	waitFor(t, 2*time.Second, func() bool {
		return slices.Contains(fx.notifier.Events(), notifications.EventJobCompleted) ||
			slices.Contains(fx.notifier.Events(), notifications.EventJobFailed)
	})
	job, _ := fx.queue.Get(jobs[0].ID)
	return job
}

func TestManagerSavesCompletedResult(t *testing.T) {
	fx := newSavingFixture(t, http.StatusOK)

	job := fx.runOne(t)

	want := filepath.Join(fx.outDir, "kiln-"+job.ID+".png")
	if job.Status != queue.StatusCompleted || job.OutputPath != want {
		t.Fatalf("unexpected job %+v, want output %s", job, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || !bytes.Equal(data, testsupport.PNG()) {
		t.Fatalf("saved file mismatch: %v", err)
	}
	if auth := <-fx.fileAuth; auth != "Bearer secret" {
		t.Fatalf("same-origin download should carry the credential, got %q", auth)
	}
	if entries, _ := os.ReadDir(fx.tempDir); len(entries) != 0 {
		t.Fatalf("download dir not cleaned: %d entries", len(entries))
	}
	if got := testutil.ToFloat64(fx.metrics.ResultDownloads.WithLabelValues("image", "saved")); got != 1 {
		t.Fatalf("saved downloads = %v, want 1", got)
	}
}

func TestManagerKeepsJobCompletedWhenDownloadFails(t *testing.T) {
	fx := newSavingFixture(t, http.StatusNotFound)

	job := fx.runOne(t)

	if job.Status != queue.StatusCompleted || job.Error != "" || job.OutputPath != "" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.ResultURL == "" || job.Progress != 100 {
		t.Fatalf("result URL should be kept: %+v", job)
	}
	if slices.Contains(fx.notifier.Events(), notifications.EventJobFailed) {
		t.Fatal("a failed download must not publish a job failure")
	}
	if entries, _ := os.ReadDir(fx.outDir); len(entries) != 0 {
		t.Fatalf("output dir should stay empty, found %d entries", len(entries))
	}
	if got := testutil.ToFloat64(fx.metrics.ResultDownloads.WithLabelValues("image", "failed")); got != 1 {
		t.Fatalf("failed downloads = %v, want 1", got)
	}
}
