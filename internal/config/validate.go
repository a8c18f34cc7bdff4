package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSnapshot(); err != nil {
		return err
	}
	if err := c.validateActor(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if err := ValidateBatchSize(c.Generation.BatchSize); err != nil {
		return fmt.Errorf("generation.batch_size %w", err)
	}
	if err := ValidateConcurrency(c.Generation.Concurrency); err != nil {
		return fmt.Errorf("generation.concurrency %w", err)
	}
	if !slices.Contains(AspectRatios, c.Generation.AspectRatio) {
		return fmt.Errorf("generation.aspect_ratio must be one of %s", strings.Join(AspectRatios, ", "))
	}
	if !slices.Contains(VideoDurations, c.Generation.VideoDuration) {
		return fmt.Errorf("generation.video_duration must be one of %v", VideoDurations)
	}
	return nil
}

// ValidateBatchSize reports whether a batch size is within the supported range.
func ValidateBatchSize(size int) error {
	if size < minBatchSize || size > maxBatchSize {
		return fmt.Errorf("must be between %d and %d (got %d)", minBatchSize, maxBatchSize, size)
	}
	return nil
}

// ValidateConcurrency reports whether a concurrency limit is within the supported range.
func ValidateConcurrency(limit int) error {
	if limit < minConcurrency || limit > maxConcurrency {
		return fmt.Errorf("must be between %d and %d (got %d)", minConcurrency, maxConcurrency, limit)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval_seconds":  c.Workflow.PollIntervalSeconds,
		"workflow.image_budget_minutes":   c.Workflow.ImageBudgetMinutes,
		"workflow.video_budget_minutes":   c.Workflow.VideoBudgetMinutes,
		"notifications.request_timeout":   c.Notifications.RequestTimeout,
		"gateway.request_timeout_seconds": c.Gateway.RequestTimeoutSeconds,
		"gateway.connect_timeout_seconds": c.Gateway.ConnectTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.PollIntervalSeconds >= c.Workflow.ImageBudgetMinutes*60 {
		return errors.New("workflow.poll_interval_seconds must be shorter than workflow.image_budget_minutes")
	}
	return nil
}

func (c *Config) validateSnapshot() error {
	switch c.Snapshot.Backend {
	case "sqlite":
	case "redis":
		if c.Snapshot.RedisURL == "" {
			return errors.New("snapshot.redis_url must be set when snapshot.backend is redis (or set KILN_REDIS_URL)")
		}
	default:
		return fmt.Errorf("snapshot.backend: unsupported value %q (expected sqlite or redis)", c.Snapshot.Backend)
	}
	return nil
}

func (c *Config) validateActor() error {
	switch c.Actor.UploadBackend {
	case "none":
	case "minio":
		if c.MinIO.Endpoint == "" {
			return errors.New("minio.endpoint must be set when actor.upload_backend is minio")
		}
		if c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "" {
			return errors.New("minio.access_key and minio.secret_key must be set when actor.upload_backend is minio")
		}
	case "http":
		if c.Upload.URL == "" {
			return errors.New("upload.url must be set when actor.upload_backend is http")
		}
		if c.Upload.ResponseFormat != "url" && c.Upload.ResponseFormat != "json" {
			return fmt.Errorf("upload.response_format: unsupported value %q (expected url or json)", c.Upload.ResponseFormat)
		}
	default:
		return fmt.Errorf("actor.upload_backend: unsupported value %q (expected none, minio or http)", c.Actor.UploadBackend)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
