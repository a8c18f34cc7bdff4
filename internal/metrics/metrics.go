// Package metrics exposes Prometheus collectors for the scheduler, session
// driver, and actor pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kiln/internal/queue"
)

// Metrics groups every kiln collector.
type Metrics struct {
	JobsClaimed        *prometheus.CounterVec
	JobsFinished       *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	PollErrors         *prometheus.CounterVec
	RunningSessions    prometheus.Gauge
	QueueJobs          *prometheus.GaugeVec
	ActorRegistrations *prometheus.CounterVec
	ResultDownloads    *prometheus.CounterVec
	PluginsLoaded      prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsClaimed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kiln_jobs_claimed_total",
				Help: "Total number of jobs claimed by the scheduler",
			},
			[]string{"media_type"},
		),
		JobsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kiln_jobs_finished_total",
				Help: "Total number of jobs that reached a terminal status",
			},
			[]string{"provider", "media_type", "status"},
		),
		// Buckets: 1s to ~68m
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kiln_job_duration_seconds",
				Help:    "Time from claim to terminal status",
				Buckets: prometheus.ExponentialBuckets(1, 2, 13),
			},
			[]string{"media_type"},
		),
		PollErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kiln_poll_errors_total",
				Help: "Status polls that failed and were retried",
			},
			[]string{"provider"},
		),
		RunningSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kiln_running_sessions",
				Help: "Current number of session drivers",
			},
		),
		QueueJobs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kiln_queue_jobs",
				Help: "Current number of jobs per status",
			},
			[]string{"status"},
		),
		ActorRegistrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kiln_actor_registrations_total",
				Help: "Actor registration attempts by outcome",
			},
			[]string{"provider", "result"},
		),
		ResultDownloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kiln_result_downloads_total",
				Help: "Completed results saved to the output directory by outcome",
			},
			[]string{"media_type", "result"},
		),
		PluginsLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kiln_plugins_loaded",
				Help: "External provider manifests currently loaded",
			},
		),
	}
}

// JobClaimed records a claim.
func (m *Metrics) JobClaimed(mediaType string) {
	if m == nil {
		return
	}
	m.JobsClaimed.WithLabelValues(mediaType).Inc()
	m.RunningSessions.Inc()
}

// JobFinished records a terminal transition and the time since claim.
func (m *Metrics) JobFinished(providerID, mediaType string, status queue.Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(providerID, mediaType, string(status)).Inc()
	m.JobDuration.WithLabelValues(mediaType).Observe(elapsed.Seconds())
	m.RunningSessions.Dec()
}

// PollError records a retried status poll.
func (m *Metrics) PollError(providerID string) {
	if m == nil {
		return
	}
	m.PollErrors.WithLabelValues(providerID).Inc()
}

// ObserveQueue publishes per-status job counts.
func (m *Metrics) ObserveQueue(stats queue.Stats) {
	if m == nil {
		return
	}
	m.QueueJobs.WithLabelValues(string(queue.StatusPending)).Set(float64(stats.Pending))
	m.QueueJobs.WithLabelValues(string(queue.StatusProcessing)).Set(float64(stats.Processing))
	m.QueueJobs.WithLabelValues(string(queue.StatusCompleted)).Set(float64(stats.Completed))
	m.QueueJobs.WithLabelValues(string(queue.StatusFailed)).Set(float64(stats.Failed))
}

// ActorRegistered records one actor pipeline item outcome.
func (m *Metrics) ActorRegistered(providerID string, ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "registered"
	}
	m.ActorRegistrations.WithLabelValues(providerID, result).Inc()
}

// ResultDownloaded records one attempt to save a completed result.
func (m *Metrics) ResultDownloaded(mediaType string, ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "saved"
	}
	m.ResultDownloads.WithLabelValues(mediaType, result).Inc()
}

// SetPluginsLoaded publishes the number of loaded manifests.
func (m *Metrics) SetPluginsLoaded(count int) {
	if m == nil {
		return
	}
	m.PluginsLoaded.Set(float64(count))
}
