package provider

import (
	"strings"
)

// TaskHub is the generic task-style aggregator API. It reports progress as a
// number or a percentage string and supports character registration.
type TaskHub struct{}

// NewTaskHub returns the built-in TaskHub adapter.
func NewTaskHub() *TaskHub { return &TaskHub{} }

var taskHubVocabulary = Vocabulary{
	Completed: []string{"success", "succeeded", "completed"},
	Failed:    []string{"error", "failed", "cancelled"},
}

func (a *TaskHub) Descriptor() Descriptor {
	return Descriptor{
		ID:          "taskhub",
		Name:        "TaskHub",
		Description: "Task aggregator API with pending/running/success lifecycle and characters",
		Version:     "1.0.0",
		Provenance:  ProvenanceBuiltin,
		Models: map[string][]string{
			MediaImage: {"flux-1.1-pro", "seedream-3"},
			MediaVideo: {"sora-2", "veo-3-fast", "kling-2.1"},
		},
	}
}

func (a *TaskHub) BuildSubmitRequest(req GenerationRequest) (RequestSpec, error) {
	if err := requirePrompt(req); err != nil {
		return RequestSpec{}, err
	}
	d := a.Descriptor()
	base := EffectiveBaseURL(req, d)
	if err := requireBaseURL(d.ID, base); err != nil {
		return RequestSpec{}, err
	}
	body := map[string]any{
		"model":        modelOrDefault(req, d),
		"prompt":       req.Prompt,
		"type":         mediaTypeOf(req),
		"aspect_ratio": req.AspectRatio,
	}
	if mediaTypeOf(req) == MediaVideo && req.Duration > 0 {
		body["duration"] = req.Duration
	}
	return RequestSpec{
		Method:  "POST",
		URL:     base + "/v1/tasks",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	}, nil
}

func (a *TaskHub) ParseSubmitResponse(raw any) SubmitResult {
	return SubmitResult{
		TaskID: FirstString(raw, "task_id", "data.task_id", "id", "data.id"),
		Status: a.ParseStatusResponse(raw),
	}
}

func (a *TaskHub) BuildStatusRequest(taskID string, req GenerationRequest) (RequestSpec, error) {
	if err := requireTaskID(taskID); err != nil {
		return RequestSpec{}, err
	}
	base := EffectiveBaseURL(req, a.Descriptor())
	if err := requireBaseURL(a.Descriptor().ID, base); err != nil {
		return RequestSpec{}, err
	}
	return RequestSpec{Method: "GET", URL: base + "/v1/tasks/" + taskID}, nil
}

func (a *TaskHub) ParseStatusResponse(raw any) Status {
	node := raw
	if data, ok := Lookup(raw, "data"); ok {
		if _, isMap := data.(map[string]any); isMap {
			node = data
		}
	}
	switch taskHubVocabulary.Classify(StringAt(node, "status")) {
	case KindCompleted:
		url := FirstString(node, "result.url", "result.urls.0", "output.0", "output", "url")
		return completedWithURL(url)
	case KindFailed:
		return Failed(FirstString(node, "error.message", "error", "fail_reason", "message"))
	default:
		return Processing(ProgressAt(node, "progress"))
	}
}

func (a *TaskHub) BuildCreateActorRequest(req ActorRequest) (RequestSpec, error) {
	base := strings.TrimRight(strings.TrimSpace(req.BaseURL), "/")
	if err := requireBaseURL(a.Descriptor().ID, base); err != nil {
		return RequestSpec{}, err
	}
	return RequestSpec{
		Method:  "POST",
		URL:     base + "/v1/characters",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body: map[string]any{
			"name":       req.Name,
			"url":        req.VideoURL,
			"timestamps": req.Timestamps(),
		},
	}, nil
}

func (a *TaskHub) ParseCreateActorResponse(raw any) (Actor, error) {
	return parseActor(raw)
}

func (a *TaskHub) BuildListActorsRequest(req GenerationRequest) (RequestSpec, error) {
	base := EffectiveBaseURL(req, a.Descriptor())
	if err := requireBaseURL(a.Descriptor().ID, base); err != nil {
		return RequestSpec{}, err
	}
	return RequestSpec{Method: "GET", URL: base + "/v1/characters"}, nil
}

func (a *TaskHub) ParseListActorsResponse(raw any) []Actor {
	return parseActorList(raw)
}

func (a *TaskHub) BuildDeleteActorRequest(actorID string, req GenerationRequest) (RequestSpec, error) {
	if err := requireTaskID(actorID); err != nil {
		return RequestSpec{}, err
	}
	base := EffectiveBaseURL(req, a.Descriptor())
	if err := requireBaseURL(a.Descriptor().ID, base); err != nil {
		return RequestSpec{}, err
	}
	return RequestSpec{Method: "DELETE", URL: base + "/v1/characters/" + actorID}, nil
}
