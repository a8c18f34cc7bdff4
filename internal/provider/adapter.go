package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kiln/internal/services"
)

// Media types accepted by jobs and adapters.
const (
	MediaImage = "image"
	MediaVideo = "video"
)

// Provenance records where an adapter came from.
type Provenance string

const (
	ProvenanceBuiltin  Provenance = "builtin"
	ProvenanceExternal Provenance = "external"
)

// Descriptor is the immutable identity of a registered provider.
type Descriptor struct {
	ID          string
	Name        string
	Description string
	Version     string
	Provenance  Provenance
	// BaseURL is used when a request does not carry its own base URL.
	BaseURL string
	// Models lists supported models keyed by media type.
	Models map[string][]string
	// Source is the manifest path for external providers.
	Source string
}

// Supports reports whether the provider lists any model for mediaType.
func (d Descriptor) Supports(mediaType string) bool {
	return len(d.Models[mediaType]) > 0
}

// DefaultModel returns the first model listed for mediaType.
func (d Descriptor) DefaultModel(mediaType string) string {
	if models := d.Models[mediaType]; len(models) > 0 {
		return models[0]
	}
	return ""
}

// GenerationRequest carries the inputs for one generation.
type GenerationRequest struct {
	Prompt      string
	Credential  string
	BaseURL     string
	Model       string
	AspectRatio string
	MediaType   string
	Duration    int
}

// RequestSpec is a provider request the gateway knows how to execute.
type RequestSpec struct {
	Method    string
	URL       string
	Headers   map[string]string
	Body      any
	Multipart bool
}

// SubmitResult is the parsed answer to a submit request.
type SubmitResult struct {
	TaskID string
	Status Status
}

// Adapter translates between kiln's generation model and one provider's wire
// format. Build methods are pure; parse methods never panic and map anything
// unrecognized to Processing(nil).
type Adapter interface {
	Descriptor() Descriptor
	BuildSubmitRequest(req GenerationRequest) (RequestSpec, error)
	ParseSubmitResponse(raw any) SubmitResult
	BuildStatusRequest(taskID string, req GenerationRequest) (RequestSpec, error)
	ParseStatusResponse(raw any) Status
}

// Executor is implemented by adapters that answer their own requests without
// the network.
type Executor interface {
	Execute(ctx context.Context, spec RequestSpec) (any, error)
}

// Actor is a registered reusable character.
type Actor struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Username   string    `json:"username,omitempty"`
	ProfileURL string    `json:"profile_url,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
}

// ActorRequest describes a character registration.
type ActorRequest struct {
	Credential string
	BaseURL    string
	Name       string
	VideoURL   string
	Start      float64
	End        float64
}

// Timestamps renders the clip range the way providers expect it ("1,3").
func (r ActorRequest) Timestamps() string {
	return fmt.Sprintf("%s,%s", formatSeconds(r.Start), formatSeconds(r.End))
}

// ActorAdapter is the optional actor registration capability.
type ActorAdapter interface {
	Adapter
	BuildCreateActorRequest(req ActorRequest) (RequestSpec, error)
	ParseCreateActorResponse(raw any) (Actor, error)
	BuildListActorsRequest(req GenerationRequest) (RequestSpec, error)
	ParseListActorsResponse(raw any) []Actor
	BuildDeleteActorRequest(actorID string, req GenerationRequest) (RequestSpec, error)
}

// ActorsFor returns the actor capability of adapter or ErrUnsupported.
func ActorsFor(adapter Adapter) (ActorAdapter, error) {
	if actors, ok := adapter.(ActorAdapter); ok {
		return actors, nil
	}
	id := "unknown"
	if adapter != nil {
		id = adapter.Descriptor().ID
	}
	return nil, services.Wrap(
		services.ErrUnsupported,
		"provider",
		"actors",
		fmt.Sprintf("actor registration is unsupported by provider %s", id),
		nil,
	)
}

// ResolveURL turns a result path such as "/v1/videos/x/content" into an
// absolute URL under base. Absolute URLs are returned unchanged.
func ResolveURL(result, base string) string {
	result = strings.TrimSpace(result)
	if !strings.HasPrefix(result, "/") || strings.HasPrefix(result, "//") {
		return result
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return result
	}
	return base + result
}

// EffectiveBaseURL returns the request base URL or the adapter default.
func EffectiveBaseURL(req GenerationRequest, d Descriptor) string {
	if base := strings.TrimRight(strings.TrimSpace(req.BaseURL), "/"); base != "" {
		return base
	}
	return strings.TrimRight(d.BaseURL, "/")
}

func requireBaseURL(id, base string) error {
	if base == "" {
		return services.Wrap(services.ErrValidation, "provider", "build request",
			fmt.Sprintf("provider %s requires generation.base_url", id), nil)
	}
	return nil
}

func requirePrompt(req GenerationRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return services.Wrap(services.ErrValidation, "provider", "build request", "prompt is empty", nil)
	}
	return nil
}

func requireTaskID(taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return services.Wrap(services.ErrValidation, "provider", "build status request", "task id is empty", nil)
	}
	return nil
}

func formatSeconds(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%.2f", value)
}

func modelOrDefault(req GenerationRequest, d Descriptor) string {
	if model := strings.TrimSpace(req.Model); model != "" {
		return model
	}
	return d.DefaultModel(mediaTypeOf(req))
}

func mediaTypeOf(req GenerationRequest) string {
	if strings.EqualFold(strings.TrimSpace(req.MediaType), MediaVideo) {
		return MediaVideo
	}
	return MediaImage
}
