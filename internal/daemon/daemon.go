package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"kiln/internal/actor"
	"kiln/internal/config"
	"kiln/internal/deps"
	"kiln/internal/logging"
	"kiln/internal/metrics"
	"kiln/internal/notifications"
	"kiln/internal/preflight"
	"kiln/internal/queue"
	"kiln/internal/registry"
	"kiln/internal/workflow"
)

// Dependencies are the components a Daemon coordinates. Queue, Store,
// Registry and Workflow are required.
type Dependencies struct {
	Queue    *queue.Queue
	Store    queue.SnapshotStore
	Registry *registry.Registry
	Workflow *workflow.Manager
	Actors   *actor.Pipeline
	Notifier notifications.Service
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	queue    *queue.Queue
	store    queue.SnapshotStore
	snapshot *queue.SnapshotWriter
	registry *registry.Registry
	workflow *workflow.Manager
	actors   *actor.Pipeline
	notifier notifications.Service
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	bg      sync.WaitGroup

	checksMu sync.RWMutex
	checks   []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	ProviderID      string
	SnapshotBackend string
	LockFilePath    string
	PluginDir       string
	Workflow        workflow.StatusSummary
	Dependencies    []deps.Status
	Checks          []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, d Dependencies) (*Daemon, error) {
	if cfg == nil || d.Queue == nil || d.Store == nil || d.Registry == nil || d.Workflow == nil {
		return nil, errors.New("daemon requires config, queue, snapshot store, registry, and workflow manager")
	}
	logger := logging.NewComponentLogger(d.Logger, "daemon")
	notifier := d.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	limit := cfg.Snapshot.Limit
	if limit <= 0 {
		limit = queue.DefaultSnapshotLimit
	}

	daemon := &Daemon{
		cfg:      cfg,
		logger:   logger,
		queue:    d.Queue,
		store:    d.Store,
		snapshot: queue.NewSnapshotWriter(d.Queue, d.Store, limit, d.Logger),
		registry: d.Registry,
		workflow: d.Workflow,
		actors:   d.Actors,
		notifier: notifier,
		metrics:  d.Metrics,
		gatherer: d.Gatherer,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	daemon.api = newAPIServer(cfg, daemon, d.Logger)
	return daemon, nil
}

// Start acquires the daemon lock, restores job history, loads external
// providers, and launches the scheduler and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another kiln daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	limit := d.cfg.Snapshot.Limit
	interrupted, err := queue.LoadInto(d.ctx, d.queue, d.store, limit)
	if err != nil {
		d.abortStart()
		return fmt.Errorf("restore job history: %w", err)
	}
	stats := d.queue.Stats()
	d.logger.Info("job history restored",
		logging.Int("jobs", stats.Total()),
		logging.Int("interrupted", interrupted),
		logging.String(logging.FieldEventType, "snapshot_restored"),
	)

	if _, err := d.ReloadProviders(d.ctx); err != nil {
		logging.WarnWithContext(d.logger, "plugin discovery failed", "plugin_discovery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.plugin_dir permissions"),
			logging.String(logging.FieldImpact, "only built-in providers are available"),
		)
	}

	d.bg.Add(1)
	go func() {
		defer d.bg.Done()
		d.snapshot.Run(d.ctx)
	}()

	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.runPreflight(d.ctx)
	d.running.Store(true)
	d.logger.Info("kiln daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldProvider, d.cfg.Generation.ProviderID),
		logging.Int("concurrency", d.cfg.Generation.Concurrency),
	)
	return nil
}

func (d *Daemon) abortStart() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.bg.Wait()
	_ = d.lock.Unlock()
	d.ctx = nil
}

// Stop stops background processing, writes a final snapshot, and releases
// the daemon lock. Jobs still processing fail with "daemon stopped".
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.workflow.Stop()
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.bg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("kiln daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.checksMu.RLock()
	checks := append([]preflight.Result(nil), d.checks...)
	d.checksMu.RUnlock()

	return Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		ProviderID:      d.cfg.Generation.ProviderID,
		SnapshotBackend: d.cfg.Snapshot.Backend,
		LockFilePath:    d.lockPath,
		PluginDir:       d.cfg.Paths.PluginDir,
		Workflow:        d.workflow.Status(),
		Dependencies:    preflight.CheckSystemDeps(d.cfg),
		Checks:          checks,
	}
}

func (d *Daemon) runPreflight(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg, d.registry)
	for _, r := range results {
		if r.Passed {
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "review the configuration for this check"),
			logging.String(logging.FieldImpact, "jobs depending on it will fail individually"),
		)
	}
	d.checksMu.Lock()
	d.checks = results
	d.checksMu.Unlock()
}
