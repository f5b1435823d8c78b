package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"ghostd/internal/config"
	"ghostd/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDevicesCPUOnlyJSON(t *testing.T) {
	cfg := writeConfig(t, "[local]\ncpu_only = true\n")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfg, "--log-level", "error", "devices", "--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var descs []types.BackendDescriptor
	if err := json.Unmarshal(out.Bytes(), &descs); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	for _, d := range descs {
		if d.Kind == types.BackendLocalAccelerated {
			t.Fatalf("accelerator listed with cpu_only: %+v", d)
		}
	}
	var cpu bool
	for _, d := range descs {
		cpu = cpu || d.ID == "cpu"
	}
	if !cpu {
		t.Fatalf("cpu descriptor missing: %+v", descs)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", writeConfig(t, ""), "--log-level", "loud", "devices"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "log level") {
		t.Fatalf("err = %v", err)
	}
}

func TestAwaitCompletion(t *testing.T) {
	ghost := func(text string) types.Event {
		return types.Event{Type: types.EventGhostText, Ghost: &types.GhostTextUpdate{Text: text}}
	}
	status := func(s types.StatusState, reason string) types.Event {
		return types.Event{Type: types.EventStatus, Status: &types.StatusEvent{State: s, Reason: reason}}
	}
	cases := []struct {
		name    string
		events  []types.Event
		want    string
		wantErr string
	}{
		{"suggestion", []types.Event{status(types.StatusRequesting, ""), ghost("world"), status(types.StatusIdle, "")}, "world\n", ""},
		{"empty", []types.Event{status(types.StatusRequesting, ""), status(types.StatusIdle, "")}, "", "no suggestion"},
		{"offline", []types.Event{status(types.StatusOffline, "network")}, "", "network"},
		{"degraded then ok", []types.Event{status(types.StatusDegraded, "accelerator_load"), ghost("x")}, "x\n", ""},
		{"crash", []types.Event{status(types.StatusDegraded, "worker_crashed")}, "", "crashed"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var out bytes.Buffer
			a := &app{out: &out, log: zerolog.Nop()}
			ch := make(chan types.Event, len(c.events))
			for _, e := range c.events {
				ch <- e
			}
			err := a.awaitCompletion(context.Background(), ch)
			if c.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), c.wantErr) {
					t.Fatalf("err = %v, want %q", err, c.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if out.String() != c.want {
				t.Fatalf("out = %q", out.String())
			}
		})
	}
}

func TestAwaitCompletionContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &app{out: &bytes.Buffer{}, log: zerolog.Nop()}
	if err := a.awaitCompletion(ctx, make(chan types.Event)); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewLoggerAutoIsJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, config.LogConfig{Level: "info", Format: "auto"})
	if err != nil {
		t.Fatal(err)
	}
	log.Info().Str("k", "v").Msg("hello")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON, got %q", buf.String())
	}
	if line["k"] != "v" || line["message"] != "hello" {
		t.Fatalf("line = %v", line)
	}
	log.Debug().Msg("hidden")
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("debug should be filtered at info: %q", buf.String())
	}
}
