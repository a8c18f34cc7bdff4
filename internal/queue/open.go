package queue

import (
	"context"
	"fmt"

	"kiln/internal/config"
)

// OpenSnapshot opens the snapshot backend selected by cfg.
func OpenSnapshot(ctx context.Context, cfg *config.Config) (SnapshotStore, error) {
	switch cfg.Snapshot.Backend {
	case "redis":
		return OpenRedis(ctx, cfg.Snapshot.RedisURL, cfg.Snapshot.RedisKey)
	case "sqlite", "":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(cfg.SnapshotDBPath())
	default:
		return nil, fmt.Errorf("unsupported snapshot backend %q", cfg.Snapshot.Backend)
	}
}
