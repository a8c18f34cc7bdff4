package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a generation job in a transport-friendly format.
type Job struct {
	ID          string `json:"id"`
	BatchID     string `json:"batchId"`
	Prompt      string `json:"prompt"`
	MediaType   string `json:"mediaType"`
	Provider    string `json:"provider"`
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	ResultURL   string `json:"resultUrl,omitempty"`
	OutputPath  string `json:"outputPath,omitempty"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// QueueStats counts jobs per status.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// WorkflowStatus summarizes scheduler state.
type WorkflowStatus struct {
	Running     bool       `json:"running"`
	Concurrency int        `json:"concurrency"`
	Sessions    int        `json:"sessions"`
	LastError   string     `json:"lastError,omitempty"`
	QueueStats  QueueStats `json:"queueStats"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult is one preflight check outcome.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running         bool               `json:"running"`
	PID             int                `json:"pid"`
	ProviderID      string             `json:"providerId"`
	SnapshotBackend string             `json:"snapshotBackend"`
	LockFilePath    string             `json:"lockFilePath"`
	PluginDir       string             `json:"pluginDir"`
	Workflow        WorkflowStatus     `json:"workflow"`
	Dependencies    []DependencyStatus `json:"dependencies"`
	Checks          []CheckResult      `json:"checks,omitempty"`
}

// Provider describes a registered adapter.
type Provider struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Version     string              `json:"version,omitempty"`
	Provenance  string              `json:"provenance"`
	BaseURL     string              `json:"baseUrl,omitempty"`
	Models      map[string][]string `json:"models,omitempty"`
	Source      string              `json:"source,omitempty"`
	Actors      bool                `json:"actors"`
	Default     bool                `json:"default"`
}

// ReloadReport summarizes a registry reload.
type ReloadReport struct {
	Loaded   []string         `json:"loaded"`
	Rejected []RejectedPlugin `json:"rejected,omitempty"`
}

// RejectedPlugin names a manifest that failed validation.
type RejectedPlugin struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Actor is a registered character.
type Actor struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Username   string `json:"username,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// ActorResult reports one registration attempt.
type ActorResult struct {
	Name     string `json:"name"`
	Image    string `json:"image"`
	OK       bool   `json:"ok"`
	Actor    *Actor `json:"actor,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// ProviderListResponse wraps the registered providers.
type ProviderListResponse struct {
	Providers []Provider `json:"providers"`
}

// ErrorResponse is the body returned for failed API calls.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
