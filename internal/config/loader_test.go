package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "debounce_ms: 30\nrequest_timeout_ms: 1500\nprovider: openai\nopenai:\n  model: m1\nhttp:\n  addr: :9999\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DebounceMS != 30 || cfg.RequestTimeoutMS != 1500 || cfg.Provider != "openai" || cfg.OpenAI.Model != "m1" || cfg.HTTP.Addr != ":9999" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.OpenAI.BaseURL != DefaultOpenAIBaseURL {
		t.Fatalf("expected default base url, got %q", cfg.OpenAI.BaseURL)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"debounce_ms":40,"provider":"gemini","gemini":{"model":"g"},"local":{"cpu_only":true}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DebounceMS != 40 || cfg.Provider != "gemini" || cfg.Gemini.Model != "g" || !cfg.Local.CPUOnly {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "debounce_ms=25\nmax_wait_ms=400\n[local]\ndevice=\"1\"\n[retry]\nmax_retries=1\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DebounceMS != 25 || cfg.MaxWaitMS != 400 || cfg.Local.Device != "1" || cfg.Retry.MaxRetries != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.MaxWait() != 400*time.Millisecond {
		t.Fatalf("MaxWait=%v", cfg.MaxWait())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Debounce() != 50*time.Millisecond {
		t.Fatalf("debounce=%v", cfg.Debounce())
	}
	if cfg.RequestTimeout() != 2*time.Second {
		t.Fatalf("timeout=%v", cfg.RequestTimeout())
	}
	if cfg.Retries() != 2 {
		t.Fatalf("retries=%d", cfg.Retries())
	}
	if cfg.MaxWait() != 0 {
		t.Fatalf("max wait should be disabled by default, got %v", cfg.MaxWait())
	}
	if cfg.Provider != "local" {
		t.Fatalf("provider=%q", cfg.Provider)
	}
}

func TestSaveRoundTripTOML(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "nested", "config.toml")
	cfg := Default()
	cfg.Provider = "openai"
	cfg.DebounceMS = 35
	if err := Save(p, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Provider != "openai" || got.DebounceMS != 35 {
		t.Fatalf("unexpected cfg: %+v", got)
	}
}
