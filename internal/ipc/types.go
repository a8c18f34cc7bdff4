package ipc

import (
	"kiln/internal/actor"
	"kiln/internal/api"
	"kiln/internal/workflow"
)

// StartRequest triggers daemon workflow startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon workflow.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/workflow status information.
type StatusResponse = api.DaemonStatus

// Job mirrors the HTTP API job DTO for IPC callers.
type Job = api.Job

// SubmitRequest enqueues a generation request.
type SubmitRequest = workflow.SubmitRequest

// SubmitResponse lists the jobs created by a submit.
type SubmitResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobListRequest filters job listing by status.
type JobListRequest struct {
	Statuses []string `json:"statuses"`
}

// JobListResponse contains jobs in creation order.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobShowRequest fetches a single job by id or unique id prefix.
type JobShowRequest struct {
	ID string `json:"id"`
}

// JobShowResponse carries the requested job.
type JobShowResponse struct {
	Job Job `json:"job"`
}

// JobCancelRequest cancels a job by id or unique id prefix.
type JobCancelRequest struct {
	ID string `json:"id"`
}

// JobCancelResponse carries the job after cancellation was requested.
type JobCancelResponse struct {
	Job Job `json:"job"`
}

// JobRetryRequest retries failed jobs. Empty IDs retries every failed job.
type JobRetryRequest struct {
	IDs []string `json:"ids"`
}

// JobRetryResponse lists the jobs created by a retry.
type JobRetryResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobClearRequest removes completed and failed jobs.
type JobClearRequest struct{}

// JobClearResponse reports how many jobs were removed.
type JobClearResponse struct {
	Removed int `json:"removed"`
}

// ProvidersRequest lists registered providers.
type ProvidersRequest struct{}

// ProvidersResponse lists registered providers in registry order.
type ProvidersResponse struct {
	Providers []api.Provider `json:"providers"`
}

// ProvidersReloadRequest rediscovers external manifests.
type ProvidersReloadRequest struct{}

// ProvidersReloadResponse summarizes the reload.
type ProvidersReloadResponse = api.ReloadReport

// ActorsRegisterRequest registers actors with a provider.
type ActorsRegisterRequest struct {
	Provider string       `json:"provider"`
	Items    []actor.Item `json:"items"`
}

// ActorsRegisterResponse reports one result per item in request order.
type ActorsRegisterResponse struct {
	Results []api.ActorResult `json:"results"`
}

// ActorsListRequest lists actors for a provider.
type ActorsListRequest struct {
	Provider string `json:"provider"`
}

// ActorsListResponse lists registered actors.
type ActorsListResponse struct {
	Actors []api.Actor `json:"actors"`
}

// ActorsDeleteRequest deletes one actor.
type ActorsDeleteRequest struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
}

// ActorsDeleteResponse confirms deletion.
type ActorsDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse indicates whether the notification was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
