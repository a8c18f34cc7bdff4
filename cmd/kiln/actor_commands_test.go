package main

import (
	"path/filepath"
	"testing"

	"kiln/internal/testsupport"
)

func TestCollectActorItemsFromTOML(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteImage(t, filepath.Join(dir, "img", "ada.png"))
	file := filepath.Join(dir, "actors.toml")
	testsupport.WriteBytes(t, file, []byte(`
[[actors]]
name = "Ada"
image = "img/ada.png"
start = 0.5
end = 2.5

[[actors]]
name = "Bo"
image = "/abs/bo.jpg"
start = 1.0
end = 3.0
`))

	items, err := collectActorItems(file, actorEntry{})
	if err != nil {
		t.Fatalf("collectActorItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ImagePath != filepath.Join(dir, "img", "ada.png") {
		t.Fatalf("expected relative image resolved against file dir, got %q", items[0].ImagePath)
	}
	if items[0].Start != 0.5 || items[0].End != 2.5 {
		t.Fatalf("unexpected clip range: %+v", items[0])
	}
	if items[1].ImagePath != "/abs/bo.jpg" {
		t.Fatalf("expected absolute image kept, got %q", items[1].ImagePath)
	}
}

func TestCollectActorItemsFromJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "actors.json")
	testsupport.WriteBytes(t, file, []byte(`{"actors":[{"name":"Cy","image":"cy.webp","start":0,"end":2}]}`))

	items, err := collectActorItems(file, actorEntry{})
	if err != nil {
		t.Fatalf("collectActorItems: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Cy" || items[0].ImagePath != filepath.Join(dir, "cy.webp") {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestCollectActorItemsErrors(t *testing.T) {
	dir := t.TempDir()
	yaml := filepath.Join(dir, "actors.yaml")
	testsupport.WriteBytes(t, yaml, []byte("actors: []"))
	empty := filepath.Join(dir, "empty.toml")
	testsupport.WriteBytes(t, empty, []byte("# nothing\n"))

	tests := []struct {
		name   string
		file   string
		single actorEntry
	}{
		{"no input", "", actorEntry{}},
		{"name without image", "", actorEntry{Name: "Ada"}},
		{"unsupported extension", yaml, actorEntry{}},
		{"empty file", empty, actorEntry{}},
		{"missing file", filepath.Join(dir, "missing.toml"), actorEntry{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := collectActorItems(tt.file, tt.single); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCollectActorItemsSingle(t *testing.T) {
	dir := t.TempDir()
	image := testsupport.WriteImage(t, filepath.Join(dir, "ada.png"))
	items, err := collectActorItems("", actorEntry{Name: "Ada", Image: image, Start: 0, End: 2})
	if err != nil {
		t.Fatalf("collectActorItems: %v", err)
	}
	if len(items) != 1 || items[0].ImagePath != image {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestActorsRegisterWithoutPipeline(t *testing.T) {
	env := setupCLITestEnv(t)
	image := testsupport.WriteImage(t, filepath.Join(t.TempDir(), "ada.png"))
	_, err := env.run(t, "actors", "register", "--name", "Ada", "--image", image, "--start", "0", "--end", "2")
	if err == nil {
		t.Fatal("expected error without actor pipeline")
	}
	requireContains(t, err.Error(), "actor pipeline unavailable")
}
