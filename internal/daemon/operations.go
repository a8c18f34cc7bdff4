package daemon

import (
	"context"
	"fmt"
	"strings"

	"kiln/internal/actor"
	"kiln/internal/logging"
	"kiln/internal/notifications"
	"kiln/internal/provider"
	"kiln/internal/queue"
	"kiln/internal/registry"
	"kiln/internal/services"
	"kiln/internal/workflow"
)

// Submit validates and enqueues a generation request.
func (d *Daemon) Submit(req workflow.SubmitRequest) ([]queue.Job, error) {
	jobs, err := d.workflow.Submit(req)
	if err != nil {
		return nil, err
	}
	if len(jobs) > 0 {
		d.logger.Info("jobs submitted",
			logging.String("batch_id", jobs[0].BatchID),
			logging.Int("count", len(jobs)),
			logging.Provider(jobs[0].ProviderID),
			logging.String("media_type", jobs[0].MediaType),
		)
	}
	return jobs, nil
}

// ListJobs returns jobs filtered by optional status names.
func (d *Daemon) ListJobs(statuses []string) ([]queue.Job, error) {
	filter := make([]queue.Status, 0, len(statuses))
	for _, value := range statuses {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "daemon", "list jobs",
				fmt.Sprintf("unknown status %q", value), nil)
		}
		filter = append(filter, status)
	}
	return d.queue.List(filter...), nil
}

// Job returns the job whose id equals or uniquely starts with id.
func (d *Daemon) Job(id string) (queue.Job, error) {
	job, ok := d.queue.Find(id)
	if !ok {
		return queue.Job{}, services.Wrap(services.ErrNotFound, "daemon", "job",
			fmt.Sprintf("job %s not found", strings.TrimSpace(id)), nil)
	}
	return job, nil
}

// CancelJob cancels a pending or processing job.
func (d *Daemon) CancelJob(id string) (queue.Job, error) {
	job, err := d.Job(id)
	if err != nil {
		return queue.Job{}, err
	}
	return d.workflow.Cancel(job.ID)
}

// RetryJobs re-enqueues failed jobs. With no ids every failed job is retried.
func (d *Daemon) RetryJobs(ids []string) ([]queue.Job, error) {
	resolved := make([]string, 0, len(ids))
	for _, id := range ids {
		job, err := d.Job(id)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, job.ID)
	}
	return d.queue.Retry(resolved...), nil
}

// ClearFinished removes completed and failed jobs.
func (d *Daemon) ClearFinished() int {
	return d.queue.RemoveFinished()
}

// Registry exposes the provider registry.
func (d *Daemon) Registry() *registry.Registry {
	return d.registry
}

// DefaultProvider returns the configured provider id.
func (d *Daemon) DefaultProvider() string {
	return d.cfg.Generation.ProviderID
}

// ReloadProviders rediscovers external manifests.
func (d *Daemon) ReloadProviders(ctx context.Context) (registry.ReloadReport, error) {
	report, err := d.registry.Reload(ctx)
	if err != nil {
		return registry.ReloadReport{}, err
	}
	for _, rejected := range report.Rejected {
		logging.WarnWithContext(d.logger, "plugin manifest rejected", "plugin_rejected",
			logging.String("path", rejected.Path),
			logging.Error(rejected.Err),
			logging.String(logging.FieldErrorHint, "fix the manifest and run kiln providers reload"),
			logging.String(logging.FieldImpact, "provider unavailable until fixed"),
		)
	}
	d.metrics.SetPluginsLoaded(len(report.Loaded))
	return report, nil
}

// RegisterActors runs the actor pipeline for providerID.
func (d *Daemon) RegisterActors(ctx context.Context, providerID string, items []actor.Item) ([]actor.Result, error) {
	if d.actors == nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "register actors", "actor pipeline unavailable", nil)
	}
	return d.actors.Register(ctx, d.providerOrDefault(providerID), items)
}

// ListActors lists the actors registered with providerID.
func (d *Daemon) ListActors(ctx context.Context, providerID string) ([]provider.Actor, error) {
	if d.actors == nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "list actors", "actor pipeline unavailable", nil)
	}
	return d.actors.List(ctx, d.providerOrDefault(providerID))
}

// DeleteActor removes an actor from providerID.
func (d *Daemon) DeleteActor(ctx context.Context, providerID, actorID string) error {
	if d.actors == nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "delete actor", "actor pipeline unavailable", nil)
	}
	return d.actors.Delete(ctx, d.providerOrDefault(providerID), actorID)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) providerOrDefault(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return d.cfg.Generation.ProviderID
}
