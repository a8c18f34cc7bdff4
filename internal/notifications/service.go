package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kiln/internal/config"
)

const userAgent = "Kiln-Go/0.1.0"

// Event identifies the kind of notification being published.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventQueueStarted Event = "queue_started"
	EventQueueDrained Event = "queue_drained"
	EventActorCreated Event = "actor_created"
	EventTest         Event = "test"
)

// Payload carries event-specific values. Keys are documented per event in
// format.
type Payload map[string]any

// Service publishes notification events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted: cfg.Notifications.JobCompleted,
			EventJobFailed:    cfg.Notifications.JobFailed,
			EventQueueStarted: cfg.Notifications.QueueDrained,
			EventQueueDrained: cfg.Notifications.QueueDrained,
			EventActorCreated: cfg.Notifications.JobCompleted,
			EventTest:         true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unsupported notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("Generated %s with %s", stringValue(payload, "mediaType", "media"), stringValue(payload, "provider", "provider"))
		if prompt := stringValue(payload, "prompt", ""); prompt != "" {
			body += "\nPrompt: " + truncate(prompt, 120)
		}
		if url := stringValue(payload, "resultURL", ""); url != "" {
			body += "\n" + url
		}
		if path := stringValue(payload, "outputPath", ""); path != "" {
			body += "\nSaved: " + path
		}
		return message{
			title: "Kiln - Job Complete",
			body:  body,
			tags:  []string{"kiln", "job", "completed"},
		}, true
	case EventJobFailed:
		body := fmt.Sprintf("Job %s failed: %s", stringValue(payload, "jobID", "?"), stringValue(payload, "reason", "unknown error"))
		return message{
			title:    "Kiln - Job Failed",
			body:     body,
			tags:     []string{"kiln", "job", "failed"},
			priority: "high",
		}, true
	case EventQueueStarted:
		return message{
			title:    "Kiln - Queue Started",
			body:     fmt.Sprintf("Processing %d job(s)", intValue(payload, "count")),
			tags:     []string{"kiln", "queue", "start"},
			priority: "low",
		}, true
	case EventQueueDrained:
		body := fmt.Sprintf("Queue drained: %d completed, %d failed", intValue(payload, "completed"), intValue(payload, "failed"))
		if d, ok := payload["duration"].(time.Duration); ok && d > 0 {
			body += fmt.Sprintf(" in %s", d.Round(time.Second))
		}
		return message{
			title: "Kiln - Queue Drained",
			body:  body,
			tags:  []string{"kiln", "queue", "completed"},
		}, true
	case EventActorCreated:
		return message{
			title: "Kiln - Actor Registered",
			body:  fmt.Sprintf("Registered @%s (%s)", stringValue(payload, "username", "?"), stringValue(payload, "name", "?")),
			tags:  []string{"kiln", "actor"},
		}, true
	case EventTest:
		return message{
			title:    "Kiln - Test",
			body:     "Notification system test",
			tags:     []string{"kiln", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func stringValue(payload Payload, key, fallback string) string {
	if payload == nil {
		return fallback
	}
	switch v := payload[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case fmt.Stringer:
		return v.String()
	}
	return fallback
}

func intValue(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
