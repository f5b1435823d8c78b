package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDir_FiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	files := []string{"b.gguf", "A.GGUF", "not-model.txt", "model.bin", "b.gguf.meta.json"}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("xx"), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].ID != "A.GGUF" || models[1].ID != "b.gguf" {
		t.Fatalf("unexpected order: %+v", models)
	}
	if models[1].Name != "b" || models[1].SizeBytes != 2 || !filepath.IsAbs(models[1].Path) {
		t.Fatalf("unexpected model: %+v", models[1])
	}
}

func TestLoadDir_MissingDirIsEmpty(t *testing.T) {
	models, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(models) != 0 {
		t.Fatalf("models=%v err=%v", models, err)
	}
}

func TestLoadDir_ExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.MkdirAll(filepath.Join(home, "models"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, "models", "x.gguf"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	models, err := LoadDir("~/models")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(models) != 1 || models[0].Path != filepath.Join(home, "models", "x.gguf") {
		t.Fatalf("unexpected: %+v", models)
	}
}
