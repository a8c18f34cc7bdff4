package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	PluginDir string `toml:"plugin_dir"`
	WorkDir   string `toml:"work_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Generation holds the provider selection and the user-facing generation
// settings applied to newly submitted jobs.
type Generation struct {
	ProviderID    string `toml:"provider_id"`
	APIKey        string `toml:"api_key"`
	BaseURL       string `toml:"base_url"`
	ImageModel    string `toml:"image_model"`
	VideoModel    string `toml:"video_model"`
	AspectRatio   string `toml:"aspect_ratio"`
	VideoDuration int    `toml:"video_duration"`
	BatchSize     int    `toml:"batch_size"`
	Concurrency   int    `toml:"concurrency"`
}

// Workflow contains scheduler and polling timing.
type Workflow struct {
	TickIntervalMillis  int `toml:"tick_interval_ms"`
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	ImageBudgetMinutes  int `toml:"image_budget_minutes"`
	VideoBudgetMinutes  int `toml:"video_budget_minutes"`
}

// Gateway contains outbound HTTP settings for provider requests.
type Gateway struct {
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds"`
}

// Output controls saving completed results to local disk. An empty Dir
// leaves results at their provider URL.
type Output struct {
	Dir string `toml:"dir"`
}

// Snapshot selects where the job history snapshot lives.
type Snapshot struct {
	Backend  string `toml:"backend"`
	Limit    int    `toml:"limit"`
	RedisURL string `toml:"redis_url"`
	RedisKey string `toml:"redis_key"`
}

// Actor contains settings for the asset/actor registration pipeline.
type Actor struct {
	ClipSeconds   int    `toml:"clip_seconds"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	MaxParallel   int    `toml:"max_parallel"`
	UploadBackend string `toml:"upload_backend"`
}

// MinIO contains S3-compatible blob store settings used for actor uploads.
type MinIO struct {
	Endpoint      string `toml:"endpoint"`
	AccessKey     string `toml:"access_key"`
	SecretKey     string `toml:"secret_key"`
	Bucket        string `toml:"bucket"`
	UseSSL        bool   `toml:"use_ssl"`
	PublicBaseURL string `toml:"public_base_url"`
	PresignHours  int    `toml:"presign_hours"`
}

// Upload contains settings for the HTTP form upload backend.
type Upload struct {
	URL            string `toml:"url"`
	FieldName      string `toml:"field_name"`
	ResponseFormat string `toml:"response_format"`
	Proxy          string `toml:"proxy"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	QueueDrained   bool   `toml:"queue_drained"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for kiln.
//
// Configuration sections by subsystem:
//   - Paths: state, log, plugin and scratch directories plus API bind address
//   - Generation: provider selection, credential, models, batch and concurrency
//   - Workflow: scheduler tick, poll interval and polling budgets
//   - Gateway: outbound request timeouts
//   - Output: local directory for downloaded results
//   - Snapshot: job history persistence backend
//   - Actor, MinIO, Upload: asset registration pipeline
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Generation    Generation    `toml:"generation"`
	Workflow      Workflow      `toml:"workflow"`
	Gateway       Gateway       `toml:"gateway"`
	Output        Output        `toml:"output"`
	Snapshot      Snapshot      `toml:"snapshot"`
	Actor         Actor         `toml:"actor"`
	MinIO         MinIO         `toml:"minio"`
	Upload        Upload        `toml:"upload"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads a .env file beside the config without overriding
// variables already present in the environment.
func loadDotEnv(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load env file %s: %w", envPath, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("kiln.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.PluginDir, c.Paths.WorkDir, c.Output.Dir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the control socket location inside the state directory.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "kiln.sock")
}

// LockPath returns the daemon single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "kilnd.lock")
}

// CurrentLogPath returns the link to the running daemon's log file.
func (c *Config) CurrentLogPath() string {
	return filepath.Join(c.Paths.LogDir, "kilnd.log")
}

// PIDPath returns the daemon process id file path.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "kilnd.pid")
}

// SnapshotDBPath returns the SQLite snapshot database location.
func (c *Config) SnapshotDBPath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// DownloadDir returns the scratch directory for in-flight result downloads.
func (c *Config) DownloadDir() string {
	return filepath.Join(c.Paths.WorkDir, "downloads")
}

// TickInterval returns the scheduler dispatch interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Workflow.TickIntervalMillis) * time.Millisecond
}

// PollInterval returns the delay between status polls of one job.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollIntervalSeconds) * time.Second
}

// PollBudget returns the maximum wall-clock polling budget for a media type.
func (c *Config) PollBudget(mediaType string) time.Duration {
	if strings.EqualFold(strings.TrimSpace(mediaType), "video") {
		return time.Duration(c.Workflow.VideoBudgetMinutes) * time.Minute
	}
	return time.Duration(c.Workflow.ImageBudgetMinutes) * time.Minute
}

// ModelFor returns the configured model for a media type.
func (c *Config) ModelFor(mediaType string) string {
	if strings.EqualFold(strings.TrimSpace(mediaType), "video") {
		return c.Generation.VideoModel
	}
	return c.Generation.ImageModel
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
