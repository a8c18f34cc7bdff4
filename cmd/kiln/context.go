package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"kiln/internal/config"
	"kiln/internal/ipc"
)

// skipConfigAnnotation marks commands that must run without a valid config,
// such as `config init`.
const skipConfigAnnotation = "kiln/skip-config"

// loadedConfig is the result of resolving --config once per invocation.
type loadedConfig struct {
	cfg *config.Config
	// path is where the config was looked for; exists reports whether a
	// file was actually read from it.
	path   string
	exists bool
}

// commandContext carries the persistent flags and lazily loaded config
// shared by every subcommand.
type commandContext struct {
	socketFlag *string
	configFlag *string
	load       func() (loadedConfig, error)
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	c := &commandContext{socketFlag: socketFlag, configFlag: configFlag}
	c.load = sync.OnceValues(c.loadConfig)
	return c
}

func (c *commandContext) loadConfig() (loadedConfig, error) {
	cfg, resolved, exists, err := config.Load(flagValue(c.configFlag))
	if err != nil {
		return loadedConfig{}, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return loadedConfig{}, err
	}
	return loadedConfig{cfg: cfg, path: resolved, exists: exists}, nil
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	loaded, err := c.load()
	return loaded.cfg, err
}

// configValue returns the config, or nil when it failed to load.
func (c *commandContext) configValue() *config.Config {
	loaded, _ := c.load()
	return loaded.cfg
}

// configSource reports where the config came from.
func (c *commandContext) configSource() (path string, exists bool) {
	loaded, _ := c.load()
	return loaded.path, loaded.exists
}

// socketPath resolves --socket, then the configured state dir, then the
// default state dir.
func (c *commandContext) socketPath() string {
	if socket := flagValue(c.socketFlag); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	stateDir, err := config.ExpandPath("~/.local/share/kiln")
	if err != nil {
		return filepath.Join(os.TempDir(), "kiln.sock")
	}
	return filepath.Join(stateDir, "kiln.sock")
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return dialError(err, socket)
	}
	defer client.Close()
	return fn(client)
}

func dialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("connect to daemon: no socket at %s; run `kiln start` first", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; the daemon may have exited, try `kiln restart`", socket)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
