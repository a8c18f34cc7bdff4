package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kiln/internal/gateway"
	"kiln/internal/logging"
	"kiln/internal/metrics"
	"kiln/internal/provider"
	"kiln/internal/queue"
	"kiln/internal/services"
)

const missingTaskIDMessage = "provider did not return a task identifier"

// Outcome is the terminal result of a Session.
type Outcome struct {
	Status    queue.Status
	ResultURL string
	// OutputPath is set when the result was saved to the output directory.
	OutputPath string
	Message    string
	Err        error
	Polls      int
	// Recorded is false when the job had already left processing and the
	// queue discarded this outcome.
	Recorded bool
}

// Session drives one claimed job: submit, poll, terminate.
type Session struct {
	Job      queue.Job
	Adapter  provider.Adapter
	Request  provider.GenerationRequest
	Gateway  gateway.Doer
	Queue    *queue.Queue
	Interval time.Duration
	Budget   time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	polls int
}

// Run drives the job to a terminal state and records it on the queue. ctx
// cancellation fails the job with "cancelled by user" when the cancel cause
// is services.ErrCancelled and with "daemon stopped" otherwise.
func (s *Session) Run(ctx context.Context) Outcome {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(s.Logger, "session"))

	outcome := s.drive(ctx, logger)
	outcome.Polls = s.polls

	var applied bool
	if outcome.Status == queue.StatusCompleted {
		applied = s.Queue.Complete(s.Job.ID, outcome.ResultURL)
	} else {
		applied = s.Queue.Fail(s.Job.ID, outcome.Message)
	}
	if !applied {
		logger.Debug("job was no longer processing; outcome discarded", logging.String("status", string(outcome.Status)))
	}
	outcome.Recorded = applied
	return outcome
}

func (s *Session) drive(ctx context.Context, logger *slog.Logger) Outcome {
	if current, ok := s.Queue.Get(s.Job.ID); !ok || current.Status != queue.StatusProcessing {
		return s.cancelled(ctx)
	}

	spec, err := s.Adapter.BuildSubmitRequest(s.Request)
	if err != nil {
		return s.failure(err)
	}
	raw, err := gateway.Dispatch(ctx, s.Gateway, s.Adapter, spec, s.Request.Credential)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelled(ctx)
		}
		return s.failure(services.Wrap(services.ErrProvider, "session", "submit", "task submission failed", err))
	}

	result := s.Adapter.ParseSubmitResponse(raw)
	if outcome, done := s.terminal(result.Status); done {
		return outcome
	}
	taskID := strings.TrimSpace(result.TaskID)
	if taskID == "" {
		return s.failure(services.Wrap(services.ErrTaskCreation, "session", "submit", missingTaskIDMessage, nil))
	}
	logger = logger.With(logging.String(logging.FieldTaskID, taskID))
	logger.Info("task submitted", logging.String("media_type", s.Request.MediaType))
	s.recordProgress(result.Status)

	return s.poll(ctx, logger, taskID)
}

func (s *Session) poll(ctx context.Context, logger *slog.Logger, taskID string) Outcome {
	attempts := maxAttempts(s.Budget, s.Interval)
	timer := time.NewTimer(s.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer.Reset(s.Interval)
		}
		select {
		case <-ctx.Done():
			return s.cancelled(ctx)
		case <-timer.C:
		}

		spec, err := s.Adapter.BuildStatusRequest(taskID, s.Request)
		if err != nil {
			return s.failure(err)
		}
		s.polls++
		raw, err := gateway.Dispatch(ctx, s.Gateway, s.Adapter, spec, s.Request.Credential)
		if err != nil {
			if ctx.Err() != nil {
				return s.cancelled(ctx)
			}
			transient := services.Wrap(services.ErrPollingTransient, "session", "poll",
				fmt.Sprintf("status check %d of %d failed", attempt, attempts), err)
			logging.WarnWithContext(logger, "status poll failed; retrying", "poll_transient",
				logging.Error(transient),
				logging.String(logging.FieldErrorHint, "provider may be briefly unavailable"),
			)
			s.Metrics.PollError(s.Adapter.Descriptor().ID)
			continue
		}

		status := s.Adapter.ParseStatusResponse(raw)
		if outcome, done := s.terminal(status); done {
			return outcome
		}
		s.recordProgress(status)
	}

	return s.failure(services.Wrap(services.ErrPollingTimeout, "session", "poll",
		fmt.Sprintf("generation timed out after %s", s.Budget), nil))
}

// terminal converts a completed or failed status into an outcome.
func (s *Session) terminal(status provider.Status) (Outcome, bool) {
	switch status.Kind() {
	case provider.KindCompleted:
		base := provider.EffectiveBaseURL(s.Request, s.Adapter.Descriptor())
		return Outcome{Status: queue.StatusCompleted, ResultURL: provider.ResolveURL(status.URL(), base)}, true
	case provider.KindFailed:
		return s.failure(services.Wrap(services.ErrProvider, "session", "generate", status.Reason(), nil)), true
	default:
		return Outcome{}, false
	}
}

func (s *Session) recordProgress(status provider.Status) {
	if progress, ok := status.Progress(); ok {
		s.Queue.SetProgress(s.Job.ID, provider.ClampProgress(progress))
	}
}

func (s *Session) failure(err error) Outcome {
	return Outcome{Status: queue.StatusFailed, Message: services.FailureMessage(err), Err: err}
}

func (s *Session) cancelled(ctx context.Context) Outcome {
	reason := queue.DaemonStopReason
	cause := context.Cause(ctx)
	if errors.Is(cause, services.ErrCancelled) {
		reason = queue.CancelledByUserReason
	}
	if cause == nil {
		// The job was cancelled on the queue before the session started.
		reason = queue.CancelledByUserReason
		cause = services.ErrCancelled
	}
	return s.failure(services.Wrap(services.ErrCancelled, "session", "cancel", reason, cause))
}

// maxAttempts is the number of polls that fit in budget.
func maxAttempts(budget, interval time.Duration) int {
	if interval <= 0 || budget <= 0 {
		return 1
	}
	attempts := int(budget / interval)
	if attempts < 1 {
		return 1
	}
	return attempts
}
