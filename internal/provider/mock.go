package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MockID is the identifier of the fallback provider.
const MockID = "mock"

const mockScheme = "mock://"

// Mock completes every job locally. Images complete on submit and videos on
// the first status poll. Unknown provider ids resolve to it.
type Mock struct{}

// NewMock returns the built-in mock adapter.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) Descriptor() Descriptor {
	return Descriptor{
		ID:          MockID,
		Name:        "Mock",
		Description: "Local provider that completes every job without network access",
		Version:     "1.0.0",
		Provenance:  ProvenanceBuiltin,
		BaseURL:     "https://mock.kiln.invalid",
		Models: map[string][]string{
			MediaImage: {"mock-image"},
			MediaVideo: {"mock-video"},
		},
	}
}

func (m *Mock) BuildSubmitRequest(req GenerationRequest) (RequestSpec, error) {
	if err := requirePrompt(req); err != nil {
		return RequestSpec{}, err
	}
	return RequestSpec{
		Method: "POST",
		URL:    mockScheme + "tasks",
		Body: map[string]any{
			"prompt":     req.Prompt,
			"media_type": mediaTypeOf(req),
			"model":      modelOrDefault(req, m.Descriptor()),
		},
	}, nil
}

func (m *Mock) ParseSubmitResponse(raw any) SubmitResult {
	return SubmitResult{
		TaskID: StringAt(raw, "id"),
		Status: m.ParseStatusResponse(raw),
	}
}

func (m *Mock) BuildStatusRequest(taskID string, req GenerationRequest) (RequestSpec, error) {
	if err := requireTaskID(taskID); err != nil {
		return RequestSpec{}, err
	}
	return RequestSpec{
		Method: "GET",
		URL:    mockScheme + "tasks/" + mediaTypeOf(req) + "/" + taskID,
	}, nil
}

func (m *Mock) ParseStatusResponse(raw any) Status {
	switch DefaultVocabulary.Classify(StringAt(raw, "status")) {
	case KindCompleted:
		return completedWithURL(StringAt(raw, "url"))
	case KindFailed:
		return Failed(StringAt(raw, "error"))
	default:
		return Processing(ProgressAt(raw, "progress"))
	}
}

// Execute answers mock requests locally.
func (m *Mock) Execute(ctx context.Context, spec RequestSpec) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(spec.URL, mockScheme)
	switch {
	case spec.Method == "POST" && path == "tasks":
		body, _ := spec.Body.(map[string]any)
		media, _ := body["media_type"].(string)
		id := "mock-" + uuid.NewString()
		if media == MediaVideo {
			return map[string]any{"id": id, "status": "queued", "progress": float64(0)}, nil
		}
		return map[string]any{"id": id, "status": "completed", "url": mockResultURL(MediaImage, id)}, nil
	case spec.Method == "GET" && strings.HasPrefix(path, "tasks/"):
		parts := strings.SplitN(strings.TrimPrefix(path, "tasks/"), "/", 2)
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("mock: malformed status path %q", spec.URL)
		}
		return map[string]any{"id": parts[1], "status": "completed", "url": mockResultURL(parts[0], parts[1])}, nil
	case spec.Method == "POST" && path == "characters":
		body, _ := spec.Body.(map[string]any)
		name, _ := body["name"].(string)
		id := "char-" + uuid.NewString()
		return map[string]any{
			"id":         id,
			"name":       name,
			"username":   mockUsername(name),
			"created_at": time.Now().UTC().Format(time.RFC3339),
		}, nil
	case spec.Method == "GET" && path == "characters":
		return map[string]any{"data": []any{}}, nil
	case spec.Method == "DELETE" && strings.HasPrefix(path, "characters/"):
		return map[string]any{"deleted": true}, nil
	default:
		return nil, fmt.Errorf("mock: unsupported request %s %s", spec.Method, spec.URL)
	}
}

func (m *Mock) BuildCreateActorRequest(req ActorRequest) (RequestSpec, error) {
	return RequestSpec{
		Method: "POST",
		URL:    mockScheme + "characters",
		Body: map[string]any{
			"name":       req.Name,
			"url":        req.VideoURL,
			"timestamps": req.Timestamps(),
		},
	}, nil
}

func (m *Mock) ParseCreateActorResponse(raw any) (Actor, error) {
	return parseActor(raw)
}

func (m *Mock) BuildListActorsRequest(GenerationRequest) (RequestSpec, error) {
	return RequestSpec{Method: "GET", URL: mockScheme + "characters"}, nil
}

func (m *Mock) ParseListActorsResponse(raw any) []Actor {
	return parseActorList(raw)
}

func (m *Mock) BuildDeleteActorRequest(actorID string, _ GenerationRequest) (RequestSpec, error) {
	if strings.TrimSpace(actorID) == "" {
		return RequestSpec{}, requireTaskID(actorID)
	}
	return RequestSpec{Method: "DELETE", URL: mockScheme + "characters/" + actorID}, nil
}

func mockResultURL(media, id string) string {
	ext := "png"
	if media == MediaVideo {
		ext = "mp4"
	}
	return fmt.Sprintf("https://mock.kiln.invalid/%s/%s.%s", media, id, ext)
}

func mockUsername(name string) string {
	name = strings.ToLower(strings.Join(strings.Fields(name), "_"))
	if name == "" {
		name = "actor"
	}
	return "@" + name
}
