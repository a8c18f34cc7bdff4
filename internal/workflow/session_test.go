package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kiln/internal/gateway"
	"kiln/internal/logging"
	"kiln/internal/provider"
	"kiln/internal/queue"
	"kiln/internal/services"
	"kiln/internal/workflow"
)

// taskHubServer answers submit with submitBody and each poll with the next
// entry of polls; the last entry repeats. A nil entry replies 503.
type taskHubServer struct {
	*httptest.Server
	submits atomic.Int32
	polls   atomic.Int32
}

func newTaskHubServer(t *testing.T, submitStatus int, submitBody any, polls ...any) *taskHubServer {
	t.Helper()
	srv := &taskHubServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/tasks":
			srv.submits.Add(1)
			if got := r.Header.Get("Authorization"); got != "Bearer secret" {
				t.Errorf("authorization header = %q", got)
			}
			w.WriteHeader(submitStatus)
			_ = json.NewEncoder(w).Encode(submitBody)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/tasks/"):
			n := int(srv.polls.Add(1)) - 1
			if len(polls) == 0 {
				http.Error(w, "no polls scripted", http.StatusInternalServerError)
				return
			}
			if n >= len(polls) {
				n = len(polls) - 1
			}
			if polls[n] == nil {
				http.Error(w, "upstream busy", http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode(polls[n])
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type sessionFixture struct {
	queue   *queue.Queue
	job     queue.Job
	session *workflow.Session

	mu       sync.Mutex
	progress []int
}

func newSessionFixture(t *testing.T, adapter provider.Adapter, baseURL string) *sessionFixture {
	t.Helper()
	q := queue.New()
	if _, err := q.Enqueue(queue.Params{Prompt: "a red fox", MediaType: provider.MediaImage, ProviderID: adapter.Descriptor().ID}, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, ok := q.ClaimNext(1)
	if !ok {
		t.Fatal("expected a claim")
	}
	fx := &sessionFixture{queue: q, job: job}
	q.OnChange(func() {
		current, ok := q.Get(job.ID)
		if !ok || current.Status != queue.StatusProcessing {
			return
		}
		fx.mu.Lock()
		if n := len(fx.progress); n == 0 || fx.progress[n-1] != current.Progress {
			fx.progress = append(fx.progress, current.Progress)
		}
		fx.mu.Unlock()
	})
	fx.session = &workflow.Session{
		Job:     job,
		Adapter: adapter,
		Request: provider.GenerationRequest{
			Prompt:     job.Prompt,
			Credential: "secret",
			BaseURL:    baseURL,
			MediaType:  provider.MediaImage,
		},
		Gateway:  gateway.New(gateway.Options{Logger: logging.NewNop()}),
		Queue:    q,
		Interval: 5 * time.Millisecond,
		Budget:   time.Second,
		Logger:   logging.NewNop(),
	}
	return fx
}

func (fx *sessionFixture) final(t *testing.T) queue.Job {
	t.Helper()
	job, ok := fx.queue.Get(fx.job.ID)
	if !ok {
		t.Fatal("job disappeared")
	}
	return job
}

func (fx *sessionFixture) progressSeen() []int {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return append([]int(nil), fx.progress...)
}

func TestSessionCompletesOnSubmit(t *testing.T) {
	srv := newTaskHubServer(t, http.StatusOK, map[string]any{
		"task_id": "t-1",
		"status":  "success",
		"result":  map[string]any{"url": "https://cdn.example/a.png"},
	})
	fx := newSessionFixture(t, provider.NewTaskHub(), srv.URL)

	outcome := fx.session.Run(context.Background())

	if outcome.Status != queue.StatusCompleted || outcome.ResultURL != "https://cdn.example/a.png" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if outcome.Polls != 0 || srv.polls.Load() != 0 {
		t.Fatalf("expected no polls, got %d", srv.polls.Load())
	}
	job := fx.final(t)
	if job.Status != queue.StatusCompleted || job.Progress != 100 || job.Error != "" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestSessionPollsUntilSucceeded(t *testing.T) {
	tests := []struct {
		name   string
		submit any
		polls  []any
	}{
		{
			name:   "taskhub vocabulary",
			submit: map[string]any{"task_id": "t-2", "status": "pending"},
			polls: []any{
				map[string]any{"status": "running", "progress": 30},
				map[string]any{"status": "running", "progress": "60%"},
				map[string]any{"status": "success", "result": map[string]any{"url": "X"}},
			},
		},
		{
			name:   "processing then succeeded",
			submit: map[string]any{"id": "t-2", "status": "processing"},
			polls: []any{
				map[string]any{"status": "processing", "progress": 30},
				map[string]any{"status": "processing", "progress": 60},
				map[string]any{"status": "succeeded", "url": "X"},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTaskHubServer(t, http.StatusOK, tc.submit, tc.polls...)
			fx := newSessionFixture(t, provider.NewTaskHub(), srv.URL)

			outcome := fx.session.Run(context.Background())

			if outcome.Status != queue.StatusCompleted || outcome.ResultURL != "X" || !outcome.Recorded {
				t.Fatalf("unexpected outcome %+v", outcome)
			}
			if outcome.Polls != 3 {
				t.Fatalf("polls = %d, want 3", outcome.Polls)
			}
			seen := fx.progressSeen()
			if len(seen) < 2 || seen[len(seen)-2] != 30 || seen[len(seen)-1] != 60 {
				t.Fatalf("progress sequence = %v, want ... 30 60", seen)
			}
			if job := fx.final(t); job.Status != queue.StatusCompleted || job.Progress != 100 || job.ResultURL != "X" {
				t.Fatalf("unexpected job %+v", job)
			}
		})
	}
}

func TestSessionFailsWithoutTaskIdentifier(t *testing.T) {
	srv := newTaskHubServer(t, http.StatusOK, map[string]any{"status": "pending"})
	fx := newSessionFixture(t, provider.NewTaskHub(), srv.URL)

	outcome := fx.session.Run(context.Background())

	if outcome.Status != queue.StatusFailed || !errors.Is(outcome.Err, services.ErrTaskCreation) {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if job := fx.final(t); job.Error != "provider did not return a task identifier" {
		t.Fatalf("error = %q", job.Error)
	}
	if srv.polls.Load() != 0 {
		t.Fatalf("expected no polls, got %d", srv.polls.Load())
	}
}

func TestSessionDoesNotRetrySubmitFailures(t *testing.T) {
	srv := newTaskHubServer(t, http.StatusInternalServerError, map[string]any{"error": "boom"})
	fx := newSessionFixture(t, provider.NewTaskHub(), srv.URL)

	outcome := fx.session.Run(context.Background())

	if outcome.Status != queue.StatusFailed || !errors.Is(outcome.Err, services.ErrProvider) {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if errors.Is(outcome.Err, services.ErrTaskCreation) {
		t.Fatal("HTTP failure on submit should not be classified as task creation")
	}
	if srv.submits.Load() != 1 {
		t.Fatalf("submits = %d, want exactly 1", srv.submits.Load())
	}
	if job := fx.final(t); !strings.Contains(job.Error, "HTTP 500") {
		t.Fatalf("error = %q, want HTTP 500 detail", job.Error)
	}
}

func TestSessionReportsSubmitTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()
	fx := newSessionFixture(t, provider.NewTaskHub(), baseURL)

	outcome := fx.session.Run(context.Background())

	if !errors.Is(outcome.Err, services.ErrProvider) || !errors.Is(outcome.Err, services.ErrGatewayTransport) {
		t.Fatalf("expected provider error wrapping transport failure, got %v", outcome.Err)
	}
	if got := services.Details(outcome.Err).Kind; got != "provider" {
		t.Fatalf("kind = %q, want provider", got)
	}
	job := fx.final(t)
	if !strings.HasPrefix(job.Error, "task submission failed: POST ") {
		t.Fatalf("error = %q, want submission failure with transport detail", job.Error)
	}
}

func TestSessionRetriesTransientPollFailures(t *testing.T) {
	srv := newTaskHubServer(t, http.StatusOK,
		map[string]any{"task_id": "t-3", "status": "queued"},
		nil,
		nil,
		map[string]any{"data": map[string]any{"status": "completed", "result": map[string]any{"url": "https://cdn.example/b.png"}}},
	)
	fx := newSessionFixture(t, provider.NewTaskHub(), srv.URL)

	outcome := fx.session.Run(context.Background())

	if outcome.Status != queue.StatusCompleted || outcome.Polls != 3 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestSessionRecordsRegressingProgress(t *testing.T) {
	srv := newTaskHubServer(t, http.StatusOK,
		map[string]any{"task_id": "t-4", "status": "running"},
		map[string]any{"status": "running", "progress": 60},
		map[string]any{"status": "running", "progress": 40},
		map[string]any{"status": "running", "progress": 250},
		map[string]any{"status": "success", "result": map[string]any{"url": "done"}},
	)
	fx := newSessionFixture(t, provider.NewTaskHub(), srv.URL)

	fx.session.Run(context.Background())

	seen := fx.progressSeen()
	want := []int{60, 40, 100}
	if len(seen) < len(want) {
		t.Fatalf("progress sequence = %v", seen)
	}
	tail := seen[len(seen)-len(want):]
	for i := range want {
		if tail[i] != want[i] {
			t.Fatalf("progress sequence = %v, want suffix %v", seen, want)
		}
	}
}

func TestSessionTimesOutAfterBudget(t *testing.T) {
	srv := newTaskHubServer(t, http.StatusOK,
		map[string]any{"task_id": "t-5", "status": "running"},
		map[string]any{"status": "running", "progress": 10},
	)
	fx := newSessionFixture(t, provider.NewTaskHub(), srv.URL)
	fx.session.Budget = 20 * time.Millisecond

	outcome := fx.session.Run(context.Background())

	if !errors.Is(outcome.Err, services.ErrPollingTimeout) {
		t.Fatalf("expected polling timeout, got %v", outcome.Err)
	}
	if outcome.Polls != 4 {
		t.Fatalf("polls = %d, want 4", outcome.Polls)
	}
	job := fx.final(t)
	if job.Error != "generation timed out after 20ms" {
		t.Fatalf("error = %q", job.Error)
	}
	if job.Progress != 10 {
		t.Fatalf("progress = %d, want last reported 10", job.Progress)
	}
}

func TestSessionReportsProviderFailure(t *testing.T) {
	srv := newTaskHubServer(t, http.StatusOK,
		map[string]any{"task_id": "t-6", "status": "running"},
		map[string]any{"status": "failed", "error": map[string]any{"message": "content policy violation"}},
	)
	fx := newSessionFixture(t, provider.NewTaskHub(), srv.URL)

	outcome := fx.session.Run(context.Background())

	if !errors.Is(outcome.Err, services.ErrProvider) {
		t.Fatalf("expected provider error, got %v", outcome.Err)
	}
	if job := fx.final(t); job.Error != "content policy violation" {
		t.Fatalf("error = %q", job.Error)
	}
}

func TestSessionCancellationReasons(t *testing.T) {
	tests := []struct {
		name   string
		cause  error
		reason string
	}{
		{name: "user", cause: services.ErrCancelled, reason: queue.CancelledByUserReason},
		{name: "shutdown", cause: errors.New("shutting down"), reason: queue.DaemonStopReason},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTaskHubServer(t, http.StatusOK,
				map[string]any{"task_id": "t-7", "status": "running"},
				map[string]any{"status": "running"},
			)
			fx := newSessionFixture(t, provider.NewTaskHub(), srv.URL)
			fx.session.Interval = 20 * time.Millisecond

			ctx, cancel := context.WithCancelCause(context.Background())
			time.AfterFunc(30*time.Millisecond, func() { cancel(tc.cause) })

			outcome := fx.session.Run(ctx)

			if !errors.Is(outcome.Err, services.ErrCancelled) {
				t.Fatalf("expected cancellation, got %v", outcome.Err)
			}
			if job := fx.final(t); job.Status != queue.StatusFailed || job.Error != tc.reason {
				t.Fatalf("unexpected job %+v", job)
			}
		})
	}
}

func TestSessionResolvesRelativeResultURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "video_1", "status": "queued"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "video_1", "status": "completed"})
		}
	}))
	defer srv.Close()

	fx := newSessionFixture(t, provider.NewOpenAIVideo(), srv.URL)
	fx.session.Request.MediaType = provider.MediaVideo
	fx.session.Request.Duration = 4

	outcome := fx.session.Run(context.Background())

	want := srv.URL + "/v1/videos/video_1/content"
	if outcome.Status != queue.StatusCompleted || outcome.ResultURL != want {
		t.Fatalf("outcome = %+v, want url %s", outcome, want)
	}
}
