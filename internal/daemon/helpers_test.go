package daemon

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/metrics"
	"kiln/internal/queue"
	"kiln/internal/registry"
	"kiln/internal/testsupport"
	"kiln/internal/workflow"
)

type daemonFixture struct {
	cfg    *config.Config
	queue  *queue.Queue
	store  *testsupport.MemoryStore
	daemon *Daemon
}

func newDaemonFixture(t *testing.T, cfg *config.Config, jobs ...queue.Job) *daemonFixture {
	t.Helper()
	if cfg == nil {
		cfg = testsupport.NewConfig(t)
	}
	q := queue.New()
	store := testsupport.NewMemoryStore(jobs...)
	reg := registry.New(registry.WithPluginDir(cfg.Paths.PluginDir))
	promReg := prometheus.NewRegistry()
	mx := metrics.New(promReg)
	mgr := workflow.NewManager(cfg, q, reg, workflow.WithMetrics(mx), workflow.WithLogger(logging.NewNop()))

	d, err := New(cfg, Dependencies{
		Queue:    q,
		Store:    store,
		Registry: reg,
		Workflow: mgr,
		Metrics:  mx,
		Gatherer: promReg,
		Logger:   logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return &daemonFixture{cfg: cfg, queue: q, store: store, daemon: d}
}
