package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"kiln/internal/actor"
	"kiln/internal/config"
	"kiln/internal/daemon"
	"kiln/internal/daemonctl"
	"kiln/internal/gateway"
	"kiln/internal/ipc"
	"kiln/internal/logging"
	"kiln/internal/metrics"
	"kiln/internal/notifications"
	"kiln/internal/output"
	"kiln/internal/preflight"
	"kiln/internal/queue"
	"kiln/internal/registry"
	"kiln/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SocketPath overrides the control socket location from config.
	SocketPath string
}

// Run starts the kiln daemon runtime loop and blocks until SIGINT, SIGTERM,
// or cmdCtx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("kilnd-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		Outputs:     []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.CurrentLogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update kilnd.log link: %v\n", err)
	}
	logDependencySnapshot(logger, cfg)
	cleanDownloads(logger, cfg.DownloadDir())

	pidPath := cfg.PIDPath()
	if err := daemonctl.WritePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.OpenSnapshot(signalCtx, cfg)
	if err != nil {
		logger.Error("open snapshot store", logging.Error(err),
			logging.String(logging.FieldEventType, "snapshot_open_failed"),
			logging.String(logging.FieldErrorHint, "check snapshot.backend and its connection settings"),
		)
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mx := metrics.New(promRegistry)

	notifier := notifications.NewService(cfg)
	gw := gateway.New(gateway.Options{
		RequestTimeout: time.Duration(cfg.Gateway.RequestTimeoutSeconds) * time.Second,
		ConnectTimeout: time.Duration(cfg.Gateway.ConnectTimeoutSeconds) * time.Second,
		Logger:         logger,
	})
	reg := registry.New(
		registry.WithPluginDir(cfg.Paths.PluginDir),
		registry.WithLogger(logger),
	)
	q := queue.New()
	manager := workflow.NewManager(cfg, q, reg,
		workflow.WithGateway(gw),
		workflow.WithNotifier(notifier),
		workflow.WithMetrics(mx),
		workflow.WithLogger(logger),
	)

	pipeline, err := actor.NewPipeline(cfg, reg,
		actor.WithGateway(gw),
		actor.WithNotifier(notifier),
		actor.WithMetrics(mx),
		actor.WithLogger(logger),
	)
	if err != nil {
		logging.WarnWithContext(logger, "actor pipeline unavailable", "actor_pipeline_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check actor.upload_backend and its settings"),
			logging.String(logging.FieldImpact, "actor registration requests will be rejected"),
		)
		pipeline = nil
	}

	d, err := daemon.New(cfg, daemon.Dependencies{
		Queue:    q,
		Store:    store,
		Registry: reg,
		Workflow: manager,
		Actors:   pipeline,
		Notifier: notifier,
		Metrics:  mx,
		Gatherer: promRegistry,
		Logger:   logger,
	})
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and snapshot store access"),
			logging.String(logging.FieldImpact, "daemon will not process jobs until started"),
		)
	}

	<-signalCtx.Done()
	logger.Info("kiln daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

// cleanDownloads removes partial result downloads left by a previous run.
func cleanDownloads(logger *slog.Logger, dir string) {
	removed, err := output.CleanTemp(dir)
	if err != nil {
		logging.WarnWithContext(logger, "download cleanup failed", "download_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on "+dir),
			logging.String(logging.FieldImpact, "stale partial downloads remain on disk"),
		)
		return
	}
	if removed > 0 {
		logger.Info("removed partial downloads", logging.Int("count", removed), logging.String("dir", dir))
	}
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String(logging.FieldProvider, cfg.Generation.ProviderID),
		logging.Bool("api_key_present", strings.TrimSpace(cfg.Generation.APIKey) != ""),
		logging.String("snapshot_backend", cfg.Snapshot.Backend),
		logging.String("upload_backend", cfg.Actor.UploadBackend),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	for _, status := range preflight.CheckSystemDeps(cfg) {
		attrs = append(attrs,
			logging.Bool(strings.ToLower(status.Name)+"_available", status.Available),
			logging.String(strings.ToLower(status.Name)+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
