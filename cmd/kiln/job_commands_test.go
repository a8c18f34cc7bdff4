package main

import (
	"encoding/json"
	"strings"
	"testing"

	"kiln/internal/api"
	"kiln/internal/queue"
)

func TestSubmitListShowCancelRetryClear(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "submit", "--batch", "2", "--aspect", "16:9", "a", "red", "fox")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Submitted 2 jobs")

	jobs := env.queue.List()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", len(jobs))
	}
	if jobs[0].Prompt != "a red fox" || jobs[0].AspectRatio != "16:9" {
		t.Fatalf("unexpected job params: %+v", jobs[0])
	}

	out, err = env.run(t, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, api.ShortID(jobs[0].ID))
	requireContains(t, out, "Pending")
	requireContains(t, out, "a red fox")

	out, err = env.run(t, "show", jobs[0].ID[:8])
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "ID:        "+jobs[0].ID)
	requireContains(t, out, "Aspect:    16:9")

	out, err = env.run(t, "cancel", jobs[0].ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, queue.CancelledByUserReason)

	out, err = env.run(t, "list", "--status", "failed", "--json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var failed []api.Job
	if err := json.Unmarshal([]byte(out), &failed); err != nil {
		t.Fatalf("decode list json: %v\n%s", err, out)
	}
	if len(failed) != 1 || failed[0].ID != jobs[0].ID {
		t.Fatalf("expected cancelled job in failed list, got %+v", failed)
	}

	out, err = env.run(t, "retry")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	requireContains(t, out, "Retrying 1 jobs")

	out, err = env.run(t, "clear")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 jobs")
	if stats := env.queue.Stats(); stats.Pending != 2 || stats.Failed != 0 {
		t.Fatalf("unexpected stats after clear: %+v", stats)
	}
}

func TestJobCommandErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown job", []string{"show", "does-not-exist"}, "not found"},
		{"bad batch", []string{"submit", "--batch", "11", "prompt"}, "batch size"},
		{"bad aspect", []string{"submit", "--aspect", "2:1", "prompt"}, "aspect ratio"},
		{"bad status", []string{"list", "--status", "bogus"}, "unknown status"},
		{"missing prompt", []string{"submit"}, "arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			if err == nil {
				t.Fatalf("expected error for %v", tt.args)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "No jobs")
}

func TestCommandsWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := env.socketPath + ".missing"
	_, _, err := runCLI(t, []string{"list"}, missing, env.configPath)
	if err == nil {
		t.Fatal("expected dial error")
	}
	requireContains(t, err.Error(), "kiln start")
}
