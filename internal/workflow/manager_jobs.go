package workflow

import (
	"fmt"
	"slices"
	"strings"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/provider"
	"kiln/internal/queue"
	"kiln/internal/services"
)

// SubmitRequest is a user generation request. Zero values take the
// configured defaults.
type SubmitRequest struct {
	Prompt      string `json:"prompt"`
	MediaType   string `json:"media_type,omitempty"`
	ProviderID  string `json:"provider_id,omitempty"`
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`
}

// Submit validates req, fills configured defaults, and enqueues the batch.
func (m *Manager) Submit(req SubmitRequest) ([]queue.Job, error) {
	cfg := m.config()

	mediaType := strings.ToLower(strings.TrimSpace(req.MediaType))
	if mediaType == "" {
		mediaType = provider.MediaImage
	}
	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		providerID = cfg.Generation.ProviderID
	}
	aspect := strings.TrimSpace(req.AspectRatio)
	if aspect == "" {
		aspect = cfg.Generation.AspectRatio
	}
	if !slices.Contains(config.AspectRatios, aspect) {
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit",
			fmt.Sprintf("aspect ratio must be one of %s", strings.Join(config.AspectRatios, ", ")), nil)
	}
	batch := req.BatchSize
	if batch == 0 {
		batch = cfg.Generation.BatchSize
	}
	if err := config.ValidateBatchSize(batch); err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit", "batch size "+err.Error(), nil)
	}

	duration := 0
	if mediaType == provider.MediaVideo {
		duration = req.Duration
		if duration == 0 {
			duration = cfg.Generation.VideoDuration
		}
		if !slices.Contains(config.VideoDurations, duration) {
			return nil, services.Wrap(services.ErrValidation, "workflow", "submit",
				fmt.Sprintf("video duration must be one of %v", config.VideoDurations), nil)
		}
	}

	if _, ok := m.registry.Lookup(providerID); !ok {
		m.logger.Warn("unknown provider requested; jobs will run on the mock provider",
			logging.Provider(providerID),
			logging.String(logging.FieldEventType, "provider_fallback"),
			logging.String(logging.FieldErrorHint, "check provider_id or reload plugins"),
		)
	}
	descriptor := m.registry.Get(providerID).Descriptor()
	if len(descriptor.Models) > 0 && !descriptor.Supports(mediaType) {
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit",
			fmt.Sprintf("provider %s does not support %s generation", descriptor.ID, mediaType), nil)
	}

	jobs, err := m.queue.Enqueue(queue.Params{
		Prompt:      req.Prompt,
		MediaType:   mediaType,
		ProviderID:  providerID,
		Model:       strings.TrimSpace(req.Model),
		AspectRatio: aspect,
		Duration:    duration,
	}, batch)
	if err != nil {
		return nil, err
	}
	m.logger.Info("jobs enqueued",
		logging.Int("count", len(jobs)),
		logging.Provider(providerID),
		logging.String("media_type", mediaType),
		logging.String("batch_id", jobs[0].BatchID),
	)
	return jobs, nil
}
