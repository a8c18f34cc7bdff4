package actor_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"kiln/internal/actor"
	"kiln/internal/config"
	"kiln/internal/gateway"
	"kiln/internal/logging"
	"kiln/internal/registry"
	"kiln/internal/services"
	"kiln/internal/testsupport"
)

// stubFFmpeg writes a script that creates its last argument and fails for
// inputs whose path contains "broken".
func stubFFmpeg(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\ncase \"$*\" in *broken*) echo 'invalid input' >&2; exit 1;; esac\nfor last; do :; done\nprintf 'clip' > \"$last\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	return path
}

type fakeStore struct {
	mu   sync.Mutex
	puts int
}

func (s *fakeStore) Put(_ context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return "https://blob.example/" + filepath.Base(path), nil
}

func newPipeline(t *testing.T, cfg *config.Config, opts ...actor.Option) *actor.Pipeline {
	t.Helper()
	base := []actor.Option{
		actor.WithEncoder(actor.NewEncoder(stubFFmpeg(t, t.TempDir()), filepath.Join(cfg.Paths.StateDir, "encoder.lock"))),
		actor.WithLogger(logging.NewNop()),
	}
	p, err := actor.NewPipeline(cfg, registry.New(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestValidateRejectsBadItems(t *testing.T) {
	dir := t.TempDir()
	image := testsupport.WriteImage(t, filepath.Join(dir, "face.png"))
	text := filepath.Join(dir, "notes.txt")
	testsupport.WriteBytes(t, text, []byte("hello"))

	tests := []struct {
		name string
		item actor.Item
		want string
	}{
		{name: "missing name", item: actor.Item{ImagePath: image, Start: 0, End: 2}, want: "name"},
		{name: "missing file", item: actor.Item{Name: "a", ImagePath: filepath.Join(dir, "gone.png"), Start: 0, End: 2}, want: "not readable"},
		{name: "not an image", item: actor.Item{Name: "a", ImagePath: text, Start: 0, End: 2}, want: "not an image"},
		{name: "negative start", item: actor.Item{Name: "a", ImagePath: image, Start: -1, End: 1}, want: "negative"},
		{name: "reversed", item: actor.Item{Name: "a", ImagePath: image, Start: 2, End: 1}, want: "before"},
		{name: "past clip", item: actor.Item{Name: "a", ImagePath: image, Start: 1, End: 3.5}, want: "exceed"},
		{name: "too short", item: actor.Item{Name: "a", ImagePath: image, Start: 1, End: 1.5}, want: "span"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := actor.Validate(tc.item, 3)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}

	if err := actor.Validate(actor.Item{Name: "ok", ImagePath: image, Start: 0, End: 3}, 3); err != nil {
		t.Fatalf("expected valid item, got %v", err)
	}
}

func TestRegisterReportsPerItemResults(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProvider("mock", ""))
	dir := t.TempDir()
	store := &fakeStore{}
	p := newPipeline(t, cfg, actor.WithBlobStore(store))

	items := []actor.Item{
		{Name: "Ann Lee", ImagePath: testsupport.WriteImage(t, filepath.Join(dir, "ann.png")), Start: 0, End: 2},
		{Name: "Too Long", ImagePath: testsupport.WriteImage(t, filepath.Join(dir, "long.png")), Start: 0, End: 4},
		{Name: "Broken", ImagePath: testsupport.WriteImage(t, filepath.Join(dir, "broken.png")), Start: 1, End: 3},
		{Name: "Bo", ImagePath: testsupport.WriteImage(t, filepath.Join(dir, "bo.jpg")), Start: 0.5, End: 2.5},
	}

	results, err := p.Register(context.Background(), "mock", items)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}

	if !results[0].OK() || results[0].Actor.Username != "@ann_lee" || !strings.HasPrefix(results[0].VideoURL, "https://blob.example/") {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if !errors.Is(results[1].Err, services.ErrValidation) {
		t.Fatalf("expected validation failure, got %v", results[1].Err)
	}
	if results[2].OK() || !strings.Contains(results[2].Err.Error(), "invalid input") {
		t.Fatalf("expected encoder failure, got %v", results[2].Err)
	}
	if !results[3].OK() || results[3].Actor.Name != "Bo" {
		t.Fatalf("unexpected last result %+v", results[3])
	}
	if store.puts != 2 {
		t.Fatalf("uploads = %d, want 2", store.puts)
	}

	leftovers, _ := filepath.Glob(filepath.Join(cfg.Paths.WorkDir, "actors", "*.mp4"))
	if len(leftovers) != 0 {
		t.Fatalf("temporary clips not removed: %v", leftovers)
	}
}

func TestRegisterRejectsProvidersWithoutActors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p := newPipeline(t, cfg, actor.WithBlobStore(&fakeStore{}))

	_, err := p.Register(context.Background(), "openai-images", []actor.Item{{Name: "x"}})
	if !errors.Is(err, services.ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRegisterWithoutUploadBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Actor.UploadBackend = "none"
	p := newPipeline(t, cfg)

	image := testsupport.WriteImage(t, filepath.Join(t.TempDir(), "face.png"))
	results, err := p.Register(context.Background(), "mock", []actor.Item{{Name: "x", ImagePath: image, Start: 0, End: 2}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !errors.Is(results[0].Err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", results[0].Err)
	}
}

func TestListAndDeleteThroughGateway(t *testing.T) {
	var deleted atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/characters":
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{
				map[string]any{"id": "c1", "name": "Ann", "username": "@ann"},
				map[string]any{"name": "no id"},
			}})
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/characters/c1":
			deleted.Store(true)
			_ = json.NewEncoder(w).Encode(map[string]any{"deleted": true})
		case r.Method == http.MethodDelete:
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithProvider("taskhub", "key"))
	cfg.Generation.BaseURL = srv.URL
	p := newPipeline(t, cfg,
		actor.WithBlobStore(&fakeStore{}),
		actor.WithGateway(gateway.New(gateway.Options{Logger: logging.NewNop()})),
	)

	actors, err := p.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(actors) != 1 || actors[0].ID != "c1" || actors[0].Username != "@ann" {
		t.Fatalf("unexpected actors %+v", actors)
	}

	if err := p.Delete(context.Background(), "taskhub", "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted.Load() {
		t.Fatalf("delete request not sent")
	}
	if err := p.Delete(context.Background(), "taskhub", "c9"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
