package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/provider"
	"kiln/internal/queue"
	"kiln/internal/services"
)

const defaultTickInterval = 500 * time.Millisecond

var errDaemonStopped = errors.New(queue.DaemonStopReason)

// Start begins background scheduling.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.queue == nil || m.registry == nil {
		m.mu.Unlock()
		return errors.New("workflow queue or registry not configured")
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop cancels every session and waits for them to record their outcome.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel(errDaemonStopped)
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	interval := m.config().TickInterval()
	if interval <= 0 {
		interval = defaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick claims pending jobs until the concurrency limit is reached and starts
// a session for each. It returns the number of sessions started.
func (m *Manager) Tick(ctx context.Context) int {
	cfg := m.config()
	started := 0
	for ctx.Err() == nil {
		m.claimMu.Lock()
		job, ok := m.queue.ClaimNext(cfg.Generation.Concurrency)
		if !ok {
			m.claimMu.Unlock()
			break
		}
		sessionCtx, cancel := m.register(ctx, job.ID)
		m.claimMu.Unlock()

		m.launch(ctx, sessionCtx, cancel, cfg, job)
		started++
	}
	if started > 0 {
		m.onQueueStarted(ctx)
	}
	m.metrics.ObserveQueue(m.queue.Stats())
	return started
}

// register records the cancel func for a claimed job before it is visible to
// Cancel as processing-with-session. Callers hold claimMu.
func (m *Manager) register(ctx context.Context, id string) (context.Context, context.CancelCauseFunc) {
	sessionCtx, cancel := context.WithCancelCause(ctx)
	m.mu.Lock()
	m.sessions[id] = cancel
	m.mu.Unlock()
	return services.WithJobID(sessionCtx, id), cancel
}

func (m *Manager) launch(ctx, sessionCtx context.Context, cancel context.CancelCauseFunc, cfg *config.Config, job queue.Job) {
	m.metrics.JobClaimed(job.MediaType)
	session := m.newSession(cfg, job)
	sessionCtx = services.WithProvider(sessionCtx, session.Adapter.Descriptor().ID)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.sessions, job.ID)
			m.mu.Unlock()
			cancel(nil)
		}()

		started := time.Now()
		outcome := session.Run(sessionCtx)
		m.metrics.JobFinished(session.Adapter.Descriptor().ID, job.MediaType, outcome.Status, time.Since(started))
		if outcome.Status == queue.StatusCompleted && outcome.Recorded {
			m.saveResult(sessionCtx, cfg, session, &outcome)
		}
		m.onSessionFinished(ctx, job, outcome)
	}()
}

func (m *Manager) newSession(cfg *config.Config, job queue.Job) *Session {
	providerID := strings.TrimSpace(job.ProviderID)
	if providerID == "" {
		providerID = cfg.Generation.ProviderID
	}
	adapter := m.registry.Get(providerID)

	request := provider.GenerationRequest{
		Prompt:      job.Prompt,
		Model:       job.Model,
		AspectRatio: job.AspectRatio,
		MediaType:   job.MediaType,
		Duration:    job.Duration,
	}
	// Credential, base URL, and models in config belong to the configured provider.
	if adapter.Descriptor().ID == cfg.Generation.ProviderID {
		request.Credential = cfg.Generation.APIKey
		request.BaseURL = cfg.Generation.BaseURL
		if request.Model == "" {
			request.Model = cfg.ModelFor(job.MediaType)
		}
	}

	interval := m.pollInterval
	if interval <= 0 {
		interval = cfg.PollInterval()
	}
	return &Session{
		Job:      job,
		Adapter:  adapter,
		Request:  request,
		Gateway:  m.gateway,
		Queue:    m.queue,
		Interval: interval,
		Budget:   cfg.PollBudget(job.MediaType),
		Logger:   m.logger,
		Metrics:  m.metrics,
	}
}

// Cancel stops a job. Pending jobs fail immediately. A processing job has
// its session cancelled and fails with "cancelled by user" once the session
// unwinds. Terminal jobs are returned unchanged.
func (m *Manager) Cancel(id string) (queue.Job, error) {
	m.claimMu.Lock()
	job, err := m.queue.Cancel(id)
	if err != nil {
		m.claimMu.Unlock()
		return queue.Job{}, err
	}
	if job.Status != queue.StatusProcessing {
		m.claimMu.Unlock()
		return job, nil
	}
	m.mu.RLock()
	cancel, ok := m.sessions[id]
	m.mu.RUnlock()
	m.claimMu.Unlock()

	if ok {
		cancel(services.ErrCancelled)
		m.logger.Info("session cancellation requested", logging.JobID(id))
		return job, nil
	}

	// Processing without a session: the manager is not running this job.
	m.queue.Fail(id, queue.CancelledByUserReason)
	updated, _ := m.queue.Get(id)
	return updated, nil
}

// Wait blocks until the session for id has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (queue.Job, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, ok := m.queue.Get(id)
		if !ok {
			return queue.Job{}, services.Wrap(services.ErrNotFound, "workflow", "wait", "job "+id+" not found", nil)
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
