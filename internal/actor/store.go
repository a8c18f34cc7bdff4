package actor

import (
	"context"
	"fmt"
	"log/slog"

	"kiln/internal/config"
	"kiln/internal/services"
)

// BlobStore publishes a local file and returns a URL providers can fetch.
type BlobStore interface {
	Put(ctx context.Context, path string) (string, error)
}

// NewBlobStore builds the store selected by actor.upload_backend. The "none"
// backend returns a nil store; registration then fails per item.
func NewBlobStore(cfg *config.Config, logger *slog.Logger) (BlobStore, error) {
	switch cfg.Actor.UploadBackend {
	case "minio":
		return NewMinIOStore(cfg.MinIO)
	case "http":
		return NewHTTPUploader(cfg.Upload, logger)
	case "", "none":
		return nil, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "actor", "blob store",
			fmt.Sprintf("unsupported upload backend %q", cfg.Actor.UploadBackend), nil)
	}
}
