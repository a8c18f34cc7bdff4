package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kiln/internal/logging"
	"kiln/internal/services"
)

func TestNewWritesFileOutputs(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "kilnd.log")

	logger, err := logging.New(logging.Options{Outputs: []string{logPath, logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("daemon starting", logging.Group("queue", logging.Int("pending", 2)))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if strings.Count(line, "daemon starting") != 1 {
		t.Fatalf("expected message written once, got %q", line)
	}
	if !strings.Contains(line, " INF ") || !strings.Contains(line, "queue.pending=2") {
		t.Fatalf("expected level tag and grouped attribute, got %q", line)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")
	if strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", buf.String())
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", buf.String())
	}
}

func TestConsoleLoggerPrefixesComponentAndJob(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "session")
	logger.Info("polling", logging.JobID("3f2a9c10-1111-2222-3333-444455556666"), logging.Int("progress", 40))

	line := buf.String()
	if !strings.Contains(line, "session [3f2a9c10]: polling") {
		t.Fatalf("expected component and short job id prefix, got %q", line)
	}
	if !strings.Contains(line, "progress=40") {
		t.Fatalf("expected progress attribute, got %q", line)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "job-1")
	ctx = services.WithProvider(ctx, "replicate")
	ctx = services.WithRequestID(ctx, "req-9")
	logging.WithContext(ctx, logger).Info("submitted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, buf.String())
	}
	if entry[logging.FieldJobID] != "job-1" {
		t.Fatalf("expected job_id, got %v", entry)
	}
	if entry[logging.FieldProvider] != "replicate" {
		t.Fatalf("expected provider, got %v", entry)
	}
	if entry[logging.FieldCorrelationID] != "req-9" {
		t.Fatalf("expected correlation id, got %v", entry)
	}
	if entry["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", entry["level"])
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "poll failed", "poll_error", logging.String(logging.FieldErrorHint, "check provider status page"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry[logging.FieldEventType] != "poll_error" {
		t.Fatalf("expected event type, got %v", entry)
	}
	if entry[logging.FieldErrorHint] != "check provider status page" {
		t.Fatalf("expected caller-provided hint, got %v", entry[logging.FieldErrorHint])
	}
	if _, ok := entry[logging.FieldImpact]; !ok {
		t.Fatalf("expected default impact, got %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 0) {
		t.Fatal("expected nop logger to be disabled")
	}
}
