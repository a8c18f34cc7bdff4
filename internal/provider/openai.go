package provider

import (
	"strconv"
	"strings"

	"kiln/internal/services"
)

const openAIBaseURL = "https://api.openai.com"

// OpenAIImages is the synchronous image endpoint: the submit response
// already carries the result, so jobs never poll.
type OpenAIImages struct{}

// NewOpenAIImages returns the built-in OpenAI images adapter.
func NewOpenAIImages() *OpenAIImages { return &OpenAIImages{} }

func (a *OpenAIImages) Descriptor() Descriptor {
	return Descriptor{
		ID:          "openai-images",
		Name:        "OpenAI Images",
		Description: "Synchronous image generation via /v1/images/generations",
		Version:     "1.0.0",
		Provenance:  ProvenanceBuiltin,
		BaseURL:     openAIBaseURL,
		Models: map[string][]string{
			MediaImage: {"gpt-image-1", "dall-e-3"},
		},
	}
}

func (a *OpenAIImages) BuildSubmitRequest(req GenerationRequest) (RequestSpec, error) {
	if err := requirePrompt(req); err != nil {
		return RequestSpec{}, err
	}
	if mediaTypeOf(req) != MediaImage {
		return RequestSpec{}, services.Wrap(services.ErrValidation, "provider", "build request",
			"openai-images only generates images", nil)
	}
	d := a.Descriptor()
	return RequestSpec{
		Method:  "POST",
		URL:     EffectiveBaseURL(req, d) + "/v1/images/generations",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body: map[string]any{
			"model":  modelOrDefault(req, d),
			"prompt": req.Prompt,
			"n":      1,
			"size":   imageSize(req.AspectRatio),
		},
	}, nil
}

func (a *OpenAIImages) ParseSubmitResponse(raw any) SubmitResult {
	return SubmitResult{Status: a.ParseStatusResponse(raw)}
}

func (a *OpenAIImages) BuildStatusRequest(string, GenerationRequest) (RequestSpec, error) {
	return RequestSpec{}, services.Wrap(services.ErrUnsupported, "provider", "build status request",
		"openai-images completes synchronously and has no status endpoint", nil)
}

func (a *OpenAIImages) ParseStatusResponse(raw any) Status {
	if message := FirstString(raw, "error.message", "error"); message != "" {
		return Failed(message)
	}
	if url := StringAt(raw, "data.0.url"); url != "" {
		return Completed(url)
	}
	if StringAt(raw, "data.0.b64_json") != "" {
		return Failed("provider returned inline base64 image data instead of a URL")
	}
	return Processing(nil)
}

func imageSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9", "4:3":
		return "1536x1024"
	case "9:16", "3:4":
		return "1024x1536"
	default:
		return "1024x1024"
	}
}

// OpenAIVideo submits multipart video jobs and polls /v1/videos/{id}.
type OpenAIVideo struct{}

// NewOpenAIVideo returns the built-in OpenAI video adapter.
func NewOpenAIVideo() *OpenAIVideo { return &OpenAIVideo{} }

var openAIVideoVocabulary = Vocabulary{
	Completed: []string{"completed"},
	Failed:    []string{"failed", "cancelled"},
}

func (a *OpenAIVideo) Descriptor() Descriptor {
	return Descriptor{
		ID:          "openai-video",
		Name:        "OpenAI Video",
		Description: "Asynchronous video generation via /v1/videos",
		Version:     "1.0.0",
		Provenance:  ProvenanceBuiltin,
		BaseURL:     openAIBaseURL,
		Models: map[string][]string{
			MediaVideo: {"sora-2", "sora-2-pro"},
		},
	}
}

func (a *OpenAIVideo) BuildSubmitRequest(req GenerationRequest) (RequestSpec, error) {
	if err := requirePrompt(req); err != nil {
		return RequestSpec{}, err
	}
	d := a.Descriptor()
	seconds := req.Duration
	if seconds <= 0 {
		seconds = 8
	}
	return RequestSpec{
		Method:    "POST",
		URL:       EffectiveBaseURL(req, d) + "/v1/videos",
		Multipart: true,
		Body: map[string]any{
			"model":   modelOrDefault(req, d),
			"prompt":  req.Prompt,
			"seconds": strconv.Itoa(seconds),
			"size":    videoSize(req.AspectRatio),
		},
	}, nil
}

func (a *OpenAIVideo) ParseSubmitResponse(raw any) SubmitResult {
	return SubmitResult{
		TaskID: StringAt(raw, "id"),
		Status: a.ParseStatusResponse(raw),
	}
}

func (a *OpenAIVideo) BuildStatusRequest(taskID string, req GenerationRequest) (RequestSpec, error) {
	if err := requireTaskID(taskID); err != nil {
		return RequestSpec{}, err
	}
	return RequestSpec{
		Method: "GET",
		URL:    EffectiveBaseURL(req, a.Descriptor()) + "/v1/videos/" + taskID,
	}, nil
}

// ParseStatusResponse derives the content URL from the video id; the
// session resolves the relative path against the request base URL.
func (a *OpenAIVideo) ParseStatusResponse(raw any) Status {
	if message := StringAt(raw, "error.message"); message != "" {
		return Failed(message)
	}
	switch openAIVideoVocabulary.Classify(StringAt(raw, "status")) {
	case KindCompleted:
		if url := FirstString(raw, "url", "download_url"); url != "" {
			return Completed(url)
		}
		id := StringAt(raw, "id")
		if id == "" {
			return completedWithURL("")
		}
		return Completed("/v1/videos/" + id + "/content")
	case KindFailed:
		return Failed(FirstString(raw, "error.message", "error", "failure_reason"))
	default:
		return Processing(ProgressAt(raw, "progress"))
	}
}

func videoSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "9:16", "3:4":
		return "720x1280"
	default:
		return "1280x720"
	}
}
