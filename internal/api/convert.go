package api

import (
	"errors"
	"slices"
	"time"

	"kiln/internal/actor"
	"kiln/internal/deps"
	"kiln/internal/preflight"
	"kiln/internal/provider"
	"kiln/internal/queue"
	"kiln/internal/registry"
	"kiln/internal/services"
	"kiln/internal/workflow"
)

// FromJob converts a queue job to its API representation.
func FromJob(job queue.Job) Job {
	dto := Job{
		ID:          job.ID,
		BatchID:     job.BatchID,
		Prompt:      job.Prompt,
		MediaType:   job.MediaType,
		Provider:    job.ProviderID,
		Model:       job.Model,
		AspectRatio: job.AspectRatio,
		Duration:    job.Duration,
		Status:      string(job.Status),
		Progress:    job.Progress,
		ResultURL:   job.ResultURL,
		OutputPath:  job.OutputPath,
		Error:       job.Error,
	}
	dto.CreatedAt = formatTime(job.CreatedAt)
	dto.UpdatedAt = formatTime(job.UpdatedAt)
	return dto
}

// FromJobs converts a slice of queue jobs into API DTOs.
func FromJobs(jobs []queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromQueueStats converts queue counters.
func FromQueueStats(stats queue.Stats) QueueStats {
	return QueueStats{
		Pending:    stats.Pending,
		Processing: stats.Processing,
		Completed:  stats.Completed,
		Failed:     stats.Failed,
	}
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	return WorkflowStatus{
		Running:     summary.Running,
		Concurrency: summary.Concurrency,
		Sessions:    summary.Sessions,
		LastError:   summary.LastError,
		QueueStats:  FromQueueStats(summary.QueueStats),
	}
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, DependencyStatus{
			Name:        status.Name,
			Command:     status.Command,
			Description: status.Description,
			Optional:    status.Optional,
			Available:   status.Available,
			Version:     status.Version,
			Detail:      status.Detail,
		})
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

// FromAdapter converts an adapter descriptor. defaultID marks the configured
// provider.
func FromAdapter(adapter provider.Adapter, defaultID string) Provider {
	d := adapter.Descriptor()
	_, actors := adapter.(provider.ActorAdapter)
	var models map[string][]string
	if len(d.Models) > 0 {
		models = make(map[string][]string, len(d.Models))
		for media, list := range d.Models {
			models[media] = slices.Clone(list)
		}
	}
	return Provider{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Version:     d.Version,
		Provenance:  string(d.Provenance),
		BaseURL:     d.BaseURL,
		Models:      models,
		Source:      d.Source,
		Actors:      actors,
		Default:     d.ID == defaultID,
	}
}

// FromRegistry lists every registered provider in registry order.
func FromRegistry(reg *registry.Registry, defaultID string) []Provider {
	descriptors := reg.All()
	out := make([]Provider, 0, len(descriptors))
	for _, d := range descriptors {
		adapter, ok := reg.Lookup(d.ID)
		if !ok {
			continue
		}
		out = append(out, FromAdapter(adapter, defaultID))
	}
	return out
}

// FromReloadReport converts a registry reload report.
func FromReloadReport(report registry.ReloadReport) ReloadReport {
	out := ReloadReport{Loaded: slices.Clone(report.Loaded)}
	if out.Loaded == nil {
		out.Loaded = []string{}
	}
	for _, rejected := range report.Rejected {
		msg := ""
		if rejected.Err != nil {
			msg = rejected.Err.Error()
		}
		out.Rejected = append(out.Rejected, RejectedPlugin{Path: rejected.Path, Error: msg})
	}
	return out
}

// FromActor converts a provider actor.
func FromActor(a provider.Actor) Actor {
	return Actor{
		ID:         a.ID,
		Name:       a.Name,
		Username:   a.Username,
		ProfileURL: a.ProfileURL,
		CreatedAt:  formatTime(a.CreatedAt),
	}
}

// FromActors converts a provider actor list.
func FromActors(actors []provider.Actor) []Actor {
	out := make([]Actor, 0, len(actors))
	for _, a := range actors {
		out = append(out, FromActor(a))
	}
	return out
}

// FromActorResults converts registration results, keeping item order.
func FromActorResults(results []actor.Result) []ActorResult {
	out := make([]ActorResult, 0, len(results))
	for _, r := range results {
		dto := ActorResult{
			Name:  r.Item.Name,
			Image: r.Item.ImagePath,
			OK:    r.OK(),
		}
		if r.OK() {
			a := FromActor(r.Actor)
			dto.Actor = &a
			dto.VideoURL = r.VideoURL
		} else {
			dto.Error = services.FailureMessage(r.Err)
		}
		out = append(out, dto)
	}
	return out
}

// FromError converts err into an ErrorResponse carrying its taxonomy kind.
func FromError(err error) ErrorResponse {
	if err == nil {
		return ErrorResponse{}
	}
	return ErrorResponse{Error: services.FailureMessage(err), Kind: ErrorKind(err)}
}

// ErrorKind names the taxonomy marker carried by err.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrPluginValidation):
		return "validation"
	case errors.Is(err, services.ErrNotFound):
		return "not_found"
	case errors.Is(err, services.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, services.ErrConfiguration):
		return "configuration"
	case errors.Is(err, services.ErrCancelled):
		return "cancelled"
	default:
		return ""
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
