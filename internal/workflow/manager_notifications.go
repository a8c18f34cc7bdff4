package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kiln/internal/logging"
	"kiln/internal/notifications"
	"kiln/internal/queue"
	"kiln/internal/services"
)

const notifyTimeout = 15 * time.Second

func (m *Manager) onQueueStarted(ctx context.Context) {
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.queueCompleted = 0
	m.queueFailed = 0
	m.mu.Unlock()

	m.publish(ctx, notifications.EventQueueStarted, notifications.Payload{"count": m.queue.Stats().Active()})
}

func (m *Manager) onSessionFinished(ctx context.Context, job queue.Job, outcome Outcome) {
	logger := logging.WithContext(services.WithJobID(ctx, job.ID), m.logger)
	if !outcome.Recorded {
		logger.Debug("session outcome superseded", logging.String("status", string(outcome.Status)))
		m.checkQueueDrained(ctx)
		return
	}

	m.mu.Lock()
	if m.queueActive {
		if outcome.Status == queue.StatusCompleted {
			m.queueCompleted++
		} else {
			m.queueFailed++
		}
	}
	m.mu.Unlock()

	switch {
	case outcome.Status == queue.StatusCompleted:
		logger.Info("job completed", logging.String("result_url", outcome.ResultURL), logging.Int("polls", outcome.Polls))
		payload := notifications.Payload{
			"jobID":     job.ID,
			"provider":  job.ProviderID,
			"mediaType": job.MediaType,
			"prompt":    job.Prompt,
			"resultURL": outcome.ResultURL,
		}
		if outcome.OutputPath != "" {
			payload["outputPath"] = outcome.OutputPath
		}
		m.publish(ctx, notifications.EventJobCompleted, payload)
	case errors.Is(outcome.Err, services.ErrCancelled):
		logger.Info("job cancelled", logging.String("reason", outcome.Message))
	default:
		m.setLastError(fmt.Errorf("job %s: %s", job.ID, outcome.Message))
		logging.WarnWithContext(logger, "job failed", "job_failed",
			logging.String("reason", outcome.Message),
			logging.String(logging.FieldErrorHint, "inspect the job error and provider credentials"),
			logging.String(logging.FieldImpact, "job will not produce a result"),
		)
		m.publish(ctx, notifications.EventJobFailed, notifications.Payload{
			"jobID":  job.ID,
			"reason": outcome.Message,
		})
	}

	m.checkQueueDrained(ctx)
}

func (m *Manager) checkQueueDrained(ctx context.Context) {
	if m.queue.Stats().Active() > 0 {
		return
	}
	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	completed, failed := m.queueCompleted, m.queueFailed
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	m.publish(ctx, notifications.EventQueueDrained, notifications.Payload{
		"completed": completed,
		"failed":    failed,
		"duration":  time.Since(start),
	})
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := m.notifier.Publish(notifyCtx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send notification", logging.String("event", string(event)))
		} else {
			m.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
		}
	}
}
