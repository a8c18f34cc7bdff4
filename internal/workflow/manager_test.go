package workflow_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kiln/internal/logging"
	"kiln/internal/metrics"
	"kiln/internal/notifications"
	"kiln/internal/provider"
	"kiln/internal/queue"
	"kiln/internal/registry"
	"kiln/internal/services"
	"kiln/internal/testsupport"
	"kiln/internal/workflow"
)

// blockingAdapter completes each submit once release is closed and tracks
// how many submits run at once.
type blockingAdapter struct {
	release chan struct{}

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func newBlockingAdapter() *blockingAdapter {
	return &blockingAdapter{release: make(chan struct{})}
}

func (a *blockingAdapter) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:         "blocking",
		Name:       "Blocking",
		Provenance: provider.ProvenanceBuiltin,
		Models:     map[string][]string{provider.MediaImage: {"slow"}},
	}
}

func (a *blockingAdapter) BuildSubmitRequest(req provider.GenerationRequest) (provider.RequestSpec, error) {
	return provider.RequestSpec{Method: "POST", URL: "stub://submit", Body: map[string]any{"prompt": req.Prompt}}, nil
}

func (a *blockingAdapter) ParseSubmitResponse(raw any) provider.SubmitResult {
	url, _ := raw.(string)
	return provider.SubmitResult{TaskID: "sync", Status: provider.Completed(url)}
}

func (a *blockingAdapter) BuildStatusRequest(string, provider.GenerationRequest) (provider.RequestSpec, error) {
	return provider.RequestSpec{}, services.Wrap(services.ErrUnsupported, "blocking", "status", "not pollable", nil)
}

func (a *blockingAdapter) ParseStatusResponse(any) provider.Status {
	return provider.Processing(nil)
}

func (a *blockingAdapter) Execute(ctx context.Context, _ provider.RequestSpec) (any, error) {
	a.mu.Lock()
	a.inFlight++
	if a.inFlight > a.maxInFlight {
		a.maxInFlight = a.inFlight
	}
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
	}()

	select {
	case <-a.release:
		return "https://stub.example/result.png", nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *blockingAdapter) peak() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxInFlight
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) Events() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.events)
}

type managerFixture struct {
	manager  *workflow.Manager
	queue    *queue.Queue
	adapter  *blockingAdapter
	notifier *recordingNotifier
}

func newManagerFixture(t *testing.T, concurrency int) *managerFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithProvider("blocking", "secret"),
		testsupport.WithConcurrency(concurrency),
	)
	adapter := newBlockingAdapter()
	reg := registry.New(registry.WithBuiltins(provider.NewMock(), adapter))
	q := queue.New()
	notifier := &recordingNotifier{}
	mgr := workflow.NewManager(cfg, q, reg,
		workflow.WithNotifier(notifier),
		workflow.WithMetrics(metrics.New(prometheus.NewRegistry())),
		workflow.WithLogger(logging.NewNop()),
		workflow.WithPollInterval(5*time.Millisecond),
	)
	t.Cleanup(func() {
		select {
		case <-adapter.release:
		default:
			close(adapter.release)
		}
		mgr.Stop()
	})
	return &managerFixture{manager: mgr, queue: q, adapter: adapter, notifier: notifier}
}

func (fx *managerFixture) releaseAll() {
	close(fx.adapter.release)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestTickRespectsConcurrencyLimit(t *testing.T) {
	fx := newManagerFixture(t, 2)
	ctx := context.Background()

	jobs, err := fx.manager.Submit(workflow.SubmitRequest{Prompt: "three foxes", BatchSize: 3})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}

	if started := fx.manager.Tick(ctx); started != 2 {
		t.Fatalf("first tick started %d, want 2", started)
	}
	if started := fx.manager.Tick(ctx); started != 0 {
		t.Fatalf("second tick started %d, want 0", started)
	}
	stats := fx.queue.Stats()
	if stats.Processing != 2 || stats.Pending != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	fx.releaseAll()
	waitFor(t, 2*time.Second, func() bool { return fx.queue.Stats().Completed == 2 })

	if started := fx.manager.Tick(ctx); started != 1 {
		t.Fatalf("third tick started %d, want 1", started)
	}
	waitFor(t, 2*time.Second, func() bool { return fx.queue.Stats().Completed == 3 })

	if peak := fx.adapter.peak(); peak > 2 {
		t.Fatalf("observed %d concurrent sessions, limit is 2", peak)
	}
	for _, job := range fx.queue.List() {
		if job.ResultURL != "https://stub.example/result.png" || job.Progress != 100 {
			t.Fatalf("unexpected job %+v", job)
		}
	}
}

func TestManagerFallsBackToMockForUnknownProvider(t *testing.T) {
	fx := newManagerFixture(t, 1)
	ctx := context.Background()

	jobs, err := fx.manager.Submit(workflow.SubmitRequest{Prompt: "a lighthouse", ProviderID: "ghost", BatchSize: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := fx.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	job, err := fx.manager.Wait(waitCtx, jobs[0].ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.Status != queue.StatusCompleted || !strings.HasPrefix(job.ResultURL, "https://mock.kiln.invalid/image/") {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.ProviderID != "ghost" {
		t.Fatalf("provider id rewritten to %q", job.ProviderID)
	}
}

func TestManagerStartTwiceFails(t *testing.T) {
	fx := newManagerFixture(t, 1)
	if err := fx.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := fx.manager.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if !fx.manager.Status().Running {
		t.Fatal("expected manager to report running")
	}
}

func TestCancelPendingJob(t *testing.T) {
	fx := newManagerFixture(t, 1)

	jobs, err := fx.manager.Submit(workflow.SubmitRequest{Prompt: "never run", BatchSize: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := fx.manager.Cancel(jobs[0].ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if job.Status != queue.StatusFailed || job.Error != queue.CancelledByUserReason {
		t.Fatalf("unexpected job %+v", job)
	}
	if started := fx.manager.Tick(context.Background()); started != 0 {
		t.Fatalf("cancelled job was claimed")
	}
}

func TestCancelProcessingJob(t *testing.T) {
	fx := newManagerFixture(t, 1)
	ctx := context.Background()

	jobs, err := fx.manager.Submit(workflow.SubmitRequest{Prompt: "slow fox", BatchSize: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	fx.manager.Tick(ctx)
	waitFor(t, time.Second, func() bool { return fx.manager.Status().Sessions == 1 })

	if _, err := fx.manager.Cancel(jobs[0].ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	job, err := fx.manager.Wait(waitCtx, jobs[0].ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.Status != queue.StatusFailed || job.Error != queue.CancelledByUserReason {
		t.Fatalf("unexpected job %+v", job)
	}
	for _, event := range fx.notifier.Events() {
		if event == notifications.EventJobFailed {
			t.Fatal("user cancellation should not publish a failure notification")
		}
	}
}

func TestCancelDuringClaimStopsEverySession(t *testing.T) {
	fx := newManagerFixture(t, 8)
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		jobs, err := fx.manager.Submit(workflow.SubmitRequest{Prompt: "racing fox", BatchSize: 8})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			fx.manager.Tick(ctx)
		}()
		for _, job := range jobs {
			if _, err := fx.manager.Cancel(job.ID); err != nil {
				t.Fatalf("Cancel: %v", err)
			}
		}
		wg.Wait()
		waitFor(t, 2*time.Second, func() bool { return fx.manager.Status().Sessions == 0 })
	}

	for _, job := range fx.queue.List() {
		if job.Status != queue.StatusFailed || job.Error != queue.CancelledByUserReason {
			t.Fatalf("unexpected job %+v", job)
		}
	}
	for _, event := range fx.notifier.Events() {
		if event == notifications.EventJobFailed || event == notifications.EventJobCompleted {
			t.Fatalf("cancelled jobs published %s", event)
		}
	}
}

func TestCancelUnknownJob(t *testing.T) {
	fx := newManagerFixture(t, 1)
	if _, err := fx.manager.Cancel("missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStopFailsRunningJobs(t *testing.T) {
	fx := newManagerFixture(t, 2)

	jobs, err := fx.manager.Submit(workflow.SubmitRequest{Prompt: "interrupted", BatchSize: 2})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := fx.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return fx.queue.Stats().Processing == 2 })

	fx.manager.Stop()

	for _, id := range []string{jobs[0].ID, jobs[1].ID} {
		job, _ := fx.queue.Get(id)
		if job.Status != queue.StatusFailed || job.Error != queue.DaemonStopReason {
			t.Fatalf("unexpected job %+v", job)
		}
	}
	if fx.manager.Status().Running {
		t.Fatal("manager still reports running")
	}
}

func TestManagerPublishesQueueLifecycle(t *testing.T) {
	fx := newManagerFixture(t, 2)
	ctx := context.Background()

	if _, err := fx.manager.Submit(workflow.SubmitRequest{Prompt: "pair", BatchSize: 2}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	fx.manager.Tick(ctx)
	fx.releaseAll()
	waitFor(t, 2*time.Second, func() bool {
		return slices.Contains(fx.notifier.Events(), notifications.EventQueueDrained)
	})

	events := fx.notifier.Events()
	if events[0] != notifications.EventQueueStarted {
		t.Fatalf("first event = %s, want queue_started", events[0])
	}
	completed := 0
	for _, event := range events {
		if event == notifications.EventJobCompleted {
			completed++
		}
	}
	if completed != 2 {
		t.Fatalf("job completed events = %d, want 2 (events %v)", completed, events)
	}
}

func TestSubmitValidation(t *testing.T) {
	fx := newManagerFixture(t, 1)

	tests := []struct {
		name string
		req  workflow.SubmitRequest
		want string
	}{
		{name: "empty prompt", req: workflow.SubmitRequest{Prompt: "  "}, want: "prompt is empty"},
		{name: "batch too large", req: workflow.SubmitRequest{Prompt: "x", BatchSize: 11}, want: "batch"},
		{name: "aspect ratio", req: workflow.SubmitRequest{Prompt: "x", AspectRatio: "2:1"}, want: "aspect ratio"},
		{name: "video duration", req: workflow.SubmitRequest{Prompt: "x", MediaType: "video", ProviderID: "mock", Duration: 7}, want: "video duration"},
		{name: "unsupported media", req: workflow.SubmitRequest{Prompt: "x", MediaType: "video"}, want: "does not support video"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.manager.Submit(tc.req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
	if total := fx.queue.Stats().Total(); total != 0 {
		t.Fatalf("rejected submissions enqueued %d jobs", total)
	}
}
