package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kiln/internal/config"
	"kiln/internal/daemon"
	"kiln/internal/ipc"
	"kiln/internal/logging"
	"kiln/internal/queue"
	"kiln/internal/registry"
	"kiln/internal/testsupport"
	"kiln/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	queue      *queue.Queue
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

// setupCLITestEnv serves a daemon over IPC without starting its scheduler,
// so submitted jobs stay pending.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	q := queue.New()
	reg := registry.New(registry.WithPluginDir(cfg.Paths.PluginDir))
	mgr := workflow.NewManager(cfg, q, reg, workflow.WithLogger(logger))
	d, err := daemon.New(cfg, daemon.Dependencies{
		Queue:    q,
		Store:    testsupport.NewMemoryStore(),
		Registry: reg,
		Workflow: mgr,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		queue:      q,
		daemon:     d,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCLI(t, args, e.socketPath, e.configPath)
	return out, err
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q
plugin_dir = %q
work_dir = %q
api_bind = "127.0.0.1:0"

[generation]
provider_id = %q

[workflow]
tick_interval_ms = 10
poll_interval_seconds = 1
`,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.PluginDir,
		cfg.Paths.WorkDir,
		cfg.Generation.ProviderID,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
