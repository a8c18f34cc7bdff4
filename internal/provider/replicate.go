package provider

import (
	"strings"
)

// Replicate drives the predictions API. The model field accepts either a
// version hash or an "owner/name" reference.
type Replicate struct{}

// NewReplicate returns the built-in Replicate adapter.
func NewReplicate() *Replicate { return &Replicate{} }

var replicateVocabulary = Vocabulary{
	Completed: []string{"succeeded"},
	Failed:    []string{"failed", "canceled"},
}

func (a *Replicate) Descriptor() Descriptor {
	return Descriptor{
		ID:          "replicate",
		Name:        "Replicate",
		Description: "Predictions API with starting/processing/succeeded lifecycle",
		Version:     "1.0.0",
		Provenance:  ProvenanceBuiltin,
		BaseURL:     "https://api.replicate.com",
		Models: map[string][]string{
			MediaImage: {"black-forest-labs/flux-schnell", "black-forest-labs/flux-dev"},
			MediaVideo: {"wan-video/wan-2.1-t2v-480p", "minimax/video-01"},
		},
	}
}

func (a *Replicate) BuildSubmitRequest(req GenerationRequest) (RequestSpec, error) {
	if err := requirePrompt(req); err != nil {
		return RequestSpec{}, err
	}
	d := a.Descriptor()
	base := EffectiveBaseURL(req, d)
	model := modelOrDefault(req, d)

	input := map[string]any{
		"prompt":       req.Prompt,
		"aspect_ratio": req.AspectRatio,
	}
	if mediaTypeOf(req) == MediaVideo && req.Duration > 0 {
		input["duration"] = req.Duration
	}

	spec := RequestSpec{
		Method:  "POST",
		Headers: map[string]string{"Content-Type": "application/json"},
	}
	if strings.Contains(model, "/") && !strings.Contains(model, ":") {
		spec.URL = base + "/v1/models/" + model + "/predictions"
		spec.Body = map[string]any{"input": input}
		return spec, nil
	}
	if idx := strings.LastIndex(model, ":"); idx >= 0 {
		model = model[idx+1:]
	}
	spec.URL = base + "/v1/predictions"
	spec.Body = map[string]any{"version": model, "input": input}
	return spec, nil
}

func (a *Replicate) ParseSubmitResponse(raw any) SubmitResult {
	return SubmitResult{
		TaskID: StringAt(raw, "id"),
		Status: a.ParseStatusResponse(raw),
	}
}

func (a *Replicate) BuildStatusRequest(taskID string, req GenerationRequest) (RequestSpec, error) {
	if err := requireTaskID(taskID); err != nil {
		return RequestSpec{}, err
	}
	return RequestSpec{
		Method: "GET",
		URL:    EffectiveBaseURL(req, a.Descriptor()) + "/v1/predictions/" + taskID,
	}, nil
}

func (a *Replicate) ParseStatusResponse(raw any) Status {
	status := StringAt(raw, "status")
	switch replicateVocabulary.Classify(status) {
	case KindCompleted:
		return completedWithURL(firstStringOf(raw, "output"))
	case KindFailed:
		reason := StringAt(raw, "error")
		if reason == "" && strings.EqualFold(status, "canceled") {
			reason = "prediction was canceled"
		}
		return Failed(reason)
	default:
		return Processing(nil)
	}
}
