package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"kiln/internal/config"
	"kiln/internal/gateway"
	"kiln/internal/logging"
	"kiln/internal/metrics"
	"kiln/internal/notifications"
	"kiln/internal/queue"
	"kiln/internal/registry"
)

// Manager schedules pending jobs onto session drivers.
type Manager struct {
	queue    *queue.Queue
	registry *registry.Registry
	gateway  gateway.Doer
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger

	pollInterval time.Duration

	// claimMu orders claiming and session registration against Cancel.
	claimMu sync.Mutex

	mu       sync.RWMutex
	cfg      *config.Config
	running  bool
	cancel   context.CancelCauseFunc
	wg       sync.WaitGroup
	sessions map[string]context.CancelCauseFunc
	lastErr  error

	queueActive    bool
	queueStart     time.Time
	queueCompleted int
	queueFailed    int
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithGateway overrides the provider gateway. The default is a gateway.Client
// built from the [gateway] config section.
func WithGateway(d gateway.Doer) ManagerOption {
	return func(m *Manager) { m.gateway = d }
}

// WithNotifier overrides the notification service.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(mx *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mx }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithPollInterval overrides the configured delay between status polls.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pollInterval = d }
}

// NewManager constructs a workflow manager over q using adapters from reg.
func NewManager(cfg *config.Config, q *queue.Queue, reg *registry.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		queue:    q,
		registry: reg,
		sessions: make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "workflow")
	if m.notifier == nil {
		m.notifier = notifications.NewService(cfg)
	}
	if m.gateway == nil {
		m.gateway = gateway.New(gateway.Options{
			RequestTimeout: time.Duration(cfg.Gateway.RequestTimeoutSeconds) * time.Second,
			ConnectTimeout: time.Duration(cfg.Gateway.ConnectTimeoutSeconds) * time.Second,
			Logger:         m.logger,
		})
	}
	return m
}

// ApplyConfig swaps the configuration read at each tick. The concurrency
// limit, credential, models, and polling budgets of new sessions follow it.
func (m *Manager) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Manager) config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}
