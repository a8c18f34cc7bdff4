package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kiln/internal/config"
	"kiln/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobCompleted, notifications.Payload{"jobID": "abc"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "job completed",
			event: notifications.EventJobCompleted,
			payload: notifications.Payload{
				"mediaType": "image",
				"provider":  "mock",
				"prompt":    "a red fox",
				"resultURL": "https://cdn.example/fox.png",
			},
			expectTitle:   "Kiln - Job Complete",
			expectMessage: "Generated image with mock\nPrompt: a red fox\nhttps://cdn.example/fox.png",
			expectTags:    "kiln,job,completed",
		},
		{
			name:  "job completed and saved",
			event: notifications.EventJobCompleted,
			payload: notifications.Payload{
				"mediaType":  "video",
				"provider":   "openai-video",
				"resultURL":  "https://api.openai.com/v1/videos/v1/content",
				"outputPath": "/home/me/renders/kiln-1.mp4",
			},
			expectTitle:   "Kiln - Job Complete",
			expectMessage: "Generated video with openai-video\nhttps://api.openai.com/v1/videos/v1/content\nSaved: /home/me/renders/kiln-1.mp4",
			expectTags:    "kiln,job,completed",
		},
		{
			name:  "job failed",
			event: notifications.EventJobFailed,
			payload: notifications.Payload{
				"jobID":  "1234",
				"reason": "content policy violation",
			},
			expectTitle:    "Kiln - Job Failed",
			expectMessage:  "Job 1234 failed: content policy violation",
			expectTags:     "kiln,job,failed",
			expectPriority: "high",
		},
		{
			name:  "queue drained",
			event: notifications.EventQueueDrained,
			payload: notifications.Payload{
				"completed": 3,
				"failed":    1,
				"duration":  90 * time.Second,
			},
			expectTitle:   "Kiln - Queue Drained",
			expectMessage: "Queue drained: 3 completed, 1 failed in 1m30s",
			expectTags:    "kiln,queue,completed",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Kiln - Test",
			expectMessage:  "Notification system test",
			expectTags:     "kiln,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.JobCompleted = true
			cfg.Notifications.JobFailed = true
			cfg.Notifications.QueueDrained = true

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish returned error: %v", err)
			}
			if captured.title != tc.expectTitle {
				t.Fatalf("title = %q, want %q", captured.title, tc.expectTitle)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("body = %q, want %q", captured.body, tc.expectMessage)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", captured.tags, tc.expectTags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", captured.priority, tc.expectPriority)
			}
		})
	}
}

func TestNtfyServiceSkipsDisabledEvents(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.JobCompleted = false
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobCompleted, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected disabled event to be skipped, got %d calls", calls)
	}
}

func TestNtfyServiceSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic locked", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
