// Package registry holds the set of provider adapters available to a daemon.
//
// A Registry is built once by the composition root and passed to every
// component that resolves providers. Built-in adapters are fixed at
// construction; external adapters are discovered from manifests and can be
// swapped with Reload.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"kiln/internal/logging"
	"kiln/internal/plugin"
	"kiln/internal/provider"
)

// Registry resolves provider ids to adapters.
type Registry struct {
	pluginDir string
	logger    *slog.Logger

	builtins   []provider.Adapter
	builtinIDs map[string]provider.Adapter
	fallback   provider.Adapter

	mu       sync.RWMutex
	external map[string]provider.Adapter
}

// Option customizes a Registry.
type Option func(*Registry)

// WithPluginDir enables manifest discovery in dir.
func WithPluginDir(dir string) Option {
	return func(r *Registry) { r.pluginDir = strings.TrimSpace(dir) }
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithBuiltins replaces the default built-in adapter set. The first adapter
// with id "mock" becomes the fallback; without one the first adapter is used.
func WithBuiltins(adapters ...provider.Adapter) Option {
	return func(r *Registry) { r.builtins = adapters }
}

// ReloadReport summarizes a discovery pass.
type ReloadReport struct {
	Loaded   []string
	Rejected []plugin.Rejection
}

// New builds a registry with the built-in adapters. External manifests are
// not read until Reload is called.
func New(opts ...Option) *Registry {
	r := &Registry{external: map[string]provider.Adapter{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = logging.NewComponentLogger(r.logger, "registry")
	if len(r.builtins) == 0 {
		r.builtins = provider.Builtins()
	}
	r.builtinIDs = make(map[string]provider.Adapter, len(r.builtins))
	for _, adapter := range r.builtins {
		id := adapter.Descriptor().ID
		if _, exists := r.builtinIDs[id]; exists {
			continue
		}
		r.builtinIDs[id] = adapter
	}
	if mock, ok := r.builtinIDs[provider.MockID]; ok {
		r.fallback = mock
	} else {
		r.fallback = r.builtins[0]
	}
	return r
}

// All lists built-in descriptors in registration order, then external ones by id.
func (r *Registry) All() []provider.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]provider.Descriptor, 0, len(r.builtinIDs)+len(r.external))
	seen := make(map[string]struct{}, len(r.builtinIDs))
	for _, adapter := range r.builtins {
		d := adapter.Descriptor()
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	ids := make([]string, 0, len(r.external))
	for id := range r.external {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, r.external[id].Descriptor())
	}
	return out
}

// Get returns the adapter for id, falling back to the mock adapter when id
// is empty or unknown. It never fails.
func (r *Registry) Get(id string) provider.Adapter {
	if adapter, ok := r.Lookup(id); ok {
		return adapter
	}
	return r.fallback
}

// Lookup returns the adapter registered under id.
func (r *Registry) Lookup(id string) (provider.Adapter, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false
	}
	if adapter, ok := r.builtinIDs[id]; ok {
		return adapter, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.external[id]
	return adapter, ok
}

// Reload rediscovers external manifests and swaps the external set in one
// step. Built-ins are never replaced and adapters already handed out stay
// valid.
func (r *Registry) Reload(ctx context.Context) (ReloadReport, error) {
	if err := ctx.Err(); err != nil {
		return ReloadReport{}, err
	}
	if r.pluginDir == "" {
		return ReloadReport{}, nil
	}
	reserved := make([]string, 0, len(r.builtinIDs))
	for id := range r.builtinIDs {
		reserved = append(reserved, id)
	}
	result, err := plugin.Discover(r.pluginDir, reserved, r.logger)
	if err != nil {
		return ReloadReport{}, err
	}

	next := make(map[string]provider.Adapter, len(result.Adapters))
	report := ReloadReport{Rejected: result.Rejected}
	for _, adapter := range result.Adapters {
		id := adapter.Descriptor().ID
		next[id] = adapter
		report.Loaded = append(report.Loaded, id)
	}
	sort.Strings(report.Loaded)

	r.mu.Lock()
	r.external = next
	r.mu.Unlock()

	r.logger.Info("provider registry reloaded",
		logging.Int("builtin", len(r.builtinIDs)),
		logging.Int("external", len(next)),
		logging.Int("rejected", len(result.Rejected)),
		logging.String(logging.FieldEventType, "registry_reload"),
	)
	return report, nil
}
