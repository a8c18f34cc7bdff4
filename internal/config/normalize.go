package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGeneration()
	c.normalizeWorkflow()
	if err := c.normalizeOutput(); err != nil {
		return err
	}
	c.normalizeSnapshot()
	c.normalizeActor()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PluginDir) == "" {
		c.Paths.PluginDir = defaultPluginDir
	}
	if c.Paths.PluginDir, err = expandPath(c.Paths.PluginDir); err != nil {
		return fmt.Errorf("paths.plugin_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("KILN_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeGeneration() {
	c.Generation.ProviderID = strings.ToLower(strings.TrimSpace(c.Generation.ProviderID))
	if c.Generation.ProviderID == "" {
		c.Generation.ProviderID = defaultProviderID
	}
	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	if c.Generation.APIKey == "" {
		if value, ok := os.LookupEnv("KILN_API_KEY"); ok {
			c.Generation.APIKey = strings.TrimSpace(value)
		}
	}
	c.Generation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generation.BaseURL), "/")
	if c.Generation.BaseURL == "" {
		if value, ok := os.LookupEnv("KILN_BASE_URL"); ok {
			c.Generation.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Generation.ImageModel = strings.TrimSpace(c.Generation.ImageModel)
	c.Generation.VideoModel = strings.TrimSpace(c.Generation.VideoModel)
	c.Generation.AspectRatio = strings.TrimSpace(c.Generation.AspectRatio)
	if c.Generation.AspectRatio == "" {
		c.Generation.AspectRatio = defaultAspectRatio
	}
	if c.Generation.VideoDuration == 0 {
		c.Generation.VideoDuration = defaultVideoDuration
	}
	if c.Generation.BatchSize == 0 {
		c.Generation.BatchSize = defaultBatchSize
	}
	if c.Generation.Concurrency == 0 {
		c.Generation.Concurrency = defaultConcurrency
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.TickIntervalMillis <= 0 {
		c.Workflow.TickIntervalMillis = defaultTickIntervalMillis
	}
	if c.Gateway.RequestTimeoutSeconds <= 0 {
		c.Gateway.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Gateway.ConnectTimeoutSeconds <= 0 {
		c.Gateway.ConnectTimeoutSeconds = defaultConnectTimeoutSeconds
	}
}

func (c *Config) normalizeOutput() error {
	c.Output.Dir = strings.TrimSpace(c.Output.Dir)
	if c.Output.Dir == "" {
		if value, ok := os.LookupEnv("KILN_OUTPUT_DIR"); ok {
			c.Output.Dir = strings.TrimSpace(value)
		}
	}
	if c.Output.Dir == "" {
		return nil
	}
	var err error
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSnapshot() {
	c.Snapshot.Backend = strings.ToLower(strings.TrimSpace(c.Snapshot.Backend))
	if c.Snapshot.Backend == "" {
		c.Snapshot.Backend = defaultSnapshotBackend
	}
	if c.Snapshot.Limit <= 0 {
		c.Snapshot.Limit = defaultSnapshotLimit
	}
	c.Snapshot.RedisURL = strings.TrimSpace(c.Snapshot.RedisURL)
	if c.Snapshot.RedisURL == "" {
		if value, ok := os.LookupEnv("KILN_REDIS_URL"); ok {
			c.Snapshot.RedisURL = strings.TrimSpace(value)
		}
	}
	c.Snapshot.RedisKey = strings.TrimSpace(c.Snapshot.RedisKey)
	if c.Snapshot.RedisKey == "" {
		c.Snapshot.RedisKey = defaultRedisKey
	}
}

func (c *Config) normalizeActor() {
	if c.Actor.ClipSeconds <= 0 {
		c.Actor.ClipSeconds = defaultClipSeconds
	}
	c.Actor.FFmpegBinary = strings.TrimSpace(c.Actor.FFmpegBinary)
	if c.Actor.FFmpegBinary == "" {
		c.Actor.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Actor.MaxParallel <= 0 {
		c.Actor.MaxParallel = defaultActorMaxParallel
	}
	c.Actor.UploadBackend = strings.ToLower(strings.TrimSpace(c.Actor.UploadBackend))
	if c.Actor.UploadBackend == "" {
		c.Actor.UploadBackend = defaultUploadBackend
	}

	c.MinIO.Endpoint = strings.TrimSpace(c.MinIO.Endpoint)
	c.MinIO.AccessKey = strings.TrimSpace(c.MinIO.AccessKey)
	if c.MinIO.AccessKey == "" {
		if value, ok := os.LookupEnv("MINIO_ACCESS_KEY"); ok {
			c.MinIO.AccessKey = strings.TrimSpace(value)
		}
	}
	c.MinIO.SecretKey = strings.TrimSpace(c.MinIO.SecretKey)
	if c.MinIO.SecretKey == "" {
		if value, ok := os.LookupEnv("MINIO_SECRET_KEY"); ok {
			c.MinIO.SecretKey = strings.TrimSpace(value)
		}
	}
	c.MinIO.Bucket = strings.TrimSpace(c.MinIO.Bucket)
	if c.MinIO.Bucket == "" {
		c.MinIO.Bucket = defaultMinIOBucket
	}
	c.MinIO.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.MinIO.PublicBaseURL), "/")
	if c.MinIO.PresignHours <= 0 {
		c.MinIO.PresignHours = defaultPresignHours
	}

	c.Upload.URL = strings.TrimSpace(c.Upload.URL)
	c.Upload.FieldName = strings.TrimSpace(c.Upload.FieldName)
	if c.Upload.FieldName == "" {
		c.Upload.FieldName = defaultUploadFieldName
	}
	c.Upload.ResponseFormat = strings.ToLower(strings.TrimSpace(c.Upload.ResponseFormat))
	if c.Upload.ResponseFormat == "" {
		c.Upload.ResponseFormat = defaultUploadResponseFormat
	}
	c.Upload.Proxy = strings.TrimSpace(c.Upload.Proxy)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format != "json" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
