package preflight

import (
	"context"

	"kiln/internal/config"
	"kiln/internal/registry"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, reg *registry.Registry) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Plugin directory", cfg.Paths.PluginDir),
	}
	if reg != nil {
		results = append(results, CheckProvider(ctx, cfg, reg))
	}
	if cfg.Snapshot.Backend == "redis" {
		results = append(results, CheckRedis(ctx, cfg.Snapshot.RedisURL))
	}
	return results
}
