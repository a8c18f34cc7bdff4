package config

const (
	defaultConfigPath              = "~/.config/kiln/config.toml"
	defaultStateDir                = "~/.local/share/kiln"
	defaultLogDir                  = "~/.local/share/kiln/logs"
	defaultPluginDir               = "~/.config/kiln/plugins"
	defaultWorkDir                 = "~/.cache/kiln/work"
	defaultAPIBind                 = "127.0.0.1:7491"
	defaultProviderID              = "mock"
	defaultAspectRatio             = "1:1"
	defaultVideoDuration           = 8
	defaultBatchSize               = 1
	defaultConcurrency             = 3
	defaultTickIntervalMillis      = 500
	defaultPollIntervalSeconds     = 5
	defaultImageBudgetMinutes      = 15
	defaultVideoBudgetMinutes      = 30
	defaultRequestTimeoutSeconds   = 480
	defaultConnectTimeoutSeconds   = 300
	defaultSnapshotBackend         = "sqlite"
	defaultSnapshotLimit           = 500
	defaultRedisKey                = "kiln:jobs"
	defaultClipSeconds             = 3
	defaultFFmpegBinary            = "ffmpeg"
	defaultActorMaxParallel        = 2
	defaultUploadBackend           = "none"
	defaultMinIOBucket             = "kiln-actors"
	defaultPresignHours            = 24
	defaultUploadFieldName         = "fileToUpload"
	defaultUploadResponseFormat    = "url"
	defaultNotifyRequestTimeout    = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	minBatchSize, maxBatchSize     = 1, 10
	minConcurrency, maxConcurrency = 1, 20
)

// AspectRatios lists the resolution strings accepted by providers.
var AspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4"}

// VideoDurations lists the clip lengths (seconds) accepted for video jobs.
var VideoDurations = []int{4, 8, 10, 12, 15}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			PluginDir: defaultPluginDir,
			WorkDir:   defaultWorkDir,
			APIBind:   defaultAPIBind,
		},
		Generation: Generation{
			ProviderID:    defaultProviderID,
			AspectRatio:   defaultAspectRatio,
			VideoDuration: defaultVideoDuration,
			BatchSize:     defaultBatchSize,
			Concurrency:   defaultConcurrency,
		},
		Workflow: Workflow{
			TickIntervalMillis:  defaultTickIntervalMillis,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			ImageBudgetMinutes:  defaultImageBudgetMinutes,
			VideoBudgetMinutes:  defaultVideoBudgetMinutes,
		},
		Gateway: Gateway{
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			ConnectTimeoutSeconds: defaultConnectTimeoutSeconds,
		},
		Snapshot: Snapshot{
			Backend:  defaultSnapshotBackend,
			Limit:    defaultSnapshotLimit,
			RedisKey: defaultRedisKey,
		},
		Actor: Actor{
			ClipSeconds:   defaultClipSeconds,
			FFmpegBinary:  defaultFFmpegBinary,
			MaxParallel:   defaultActorMaxParallel,
			UploadBackend: defaultUploadBackend,
		},
		MinIO: MinIO{
			Bucket:       defaultMinIOBucket,
			PresignHours: defaultPresignHours,
		},
		Upload: Upload{
			FieldName:      defaultUploadFieldName,
			ResponseFormat: defaultUploadResponseFormat,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			QueueDrained:   true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
