package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ghostd/pkg/types"
)

func TestOpenAI_FIMRequestAndResponse(t *testing.T) {
	var got openAIRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/completions" {
			t.Errorf("path=%s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"text":"x + 1  \n","finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(types.ProviderConfig{BaseURL: srv.URL + "/v1/", Model: "m", Credential: "literal:sk-test"}, nil, srv.Client())
	snap := types.ContextSnapshot{Prefix: "y = ", Suffix: "\nz = 2"}
	text, err := o.Generate(context.Background(), snap, Params{MaxTokens: 128, FIMMaxTokens: 50, Temperature: 0.2})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "x + 1" {
		t.Fatalf("text=%q", text)
	}
	if auth != "Bearer sk-test" || got.Model != "m" || got.Prompt != "y = " || got.Suffix != "\nz = 2" || got.MaxTokens != 50 || got.Stream {
		t.Fatalf("request=%+v auth=%q", got, auth)
	}
}

func TestOpenAI_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		header string
		kind   types.FailureKind
		after  time.Duration
	}{
		{http.StatusUnauthorized, "", types.FailureAuth, 0},
		{http.StatusForbidden, "", types.FailureAuth, 0},
		{http.StatusTooManyRequests, "7", types.FailureRateLimited, 7 * time.Second},
		{http.StatusBadGateway, "", types.FailureNetwork, 0},
		{http.StatusBadRequest, "", types.FailureBadResponse, 0},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tc.header != "" {
				w.Header().Set("Retry-After", tc.header)
			}
			http.Error(w, "nope", tc.status)
		}))
		o := NewOpenAI(types.ProviderConfig{BaseURL: srv.URL, Model: "m"}, nil, srv.Client())
		_, err := o.Generate(context.Background(), types.ContextSnapshot{Prefix: "a"}, Params{})
		srv.Close()
		if Classify(err) != tc.kind || RetryAfter(err) != tc.after {
			t.Fatalf("status %d: kind=%s after=%v err=%v", tc.status, Classify(err), RetryAfter(err), err)
		}
	}
}

func TestOpenAI_MissingCredentialIsAuth(t *testing.T) {
	t.Setenv("GHOSTD_TEST_MISSING_KEY", "")
	o := NewOpenAI(types.ProviderConfig{BaseURL: "http://127.0.0.1:1", Credential: "env:GHOSTD_TEST_MISSING_KEY"}, nil, nil)
	_, err := o.Generate(context.Background(), types.ContextSnapshot{Prefix: "a"}, Params{})
	if !IsAuth(err) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestOpenAI_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	o := NewOpenAI(types.ProviderConfig{BaseURL: url}, nil, nil)
	_, err := o.Generate(context.Background(), types.ContextSnapshot{Prefix: "a"}, Params{})
	if !IsTransient(err) {
		t.Fatalf("expected transient failure, got %v", err)
	}
}

func TestOpenAI_DeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	o := NewOpenAI(types.ProviderConfig{BaseURL: srv.URL}, nil, srv.Client())
	_, err := o.Generate(ctx, types.ContextSnapshot{Prefix: "a"}, Params{})
	if Classify(err) != types.FailureTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestGemini_Request(t *testing.T) {
	var got geminiRequest
	var key, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("x-goog-api-key")
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"not "},{"text":"a bug"}]}}]}`))
	}))
	defer srv.Close()
	g := NewGemini(types.ProviderConfig{BaseURL: srv.URL, Model: "gemini-1.5-flash", Credential: "literal:k"}, EnvResolver{}, srv.Client())
	text, err := g.Generate(context.Background(), types.ContextSnapshot{Prefix: "This is "}, Params{MaxTokens: 64, Temperature: 0.1})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "not a bug" || key != "k" || path != "/models/gemini-1.5-flash:generateContent" {
		t.Fatalf("text=%q key=%q path=%q", text, key, path)
	}
	if got.GenerationConfig.MaxOutputTokens != 64 || len(got.Contents) != 1 || got.Contents[0].Parts[0].Text != geminiPrompt(types.ContextSnapshot{Prefix: "This is "}) {
		t.Fatalf("request=%+v", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if d := parseRetryAfter("", now); d != 0 {
		t.Fatalf("empty=%v", d)
	}
	if d := parseRetryAfter("12", now); d != 12*time.Second {
		t.Fatalf("seconds=%v", d)
	}
	date := now.Add(30 * time.Second).Format(http.TimeFormat)
	if d := parseRetryAfter(date, now); d != 30*time.Second {
		t.Fatalf("date=%v", d)
	}
	if d := parseRetryAfter("soon", now); d != 0 {
		t.Fatalf("garbage=%v", d)
	}
}

func TestEnvResolver(t *testing.T) {
	t.Setenv("GHOSTD_TEST_KEY", "abc")
	r := EnvResolver{}
	if v, err := r.Resolve("env:GHOSTD_TEST_KEY"); err != nil || v != "abc" {
		t.Fatalf("env: %q %v", v, err)
	}
	if v, err := r.Resolve("literal:xyz"); err != nil || v != "xyz" {
		t.Fatalf("literal: %q %v", v, err)
	}
	if v, err := r.Resolve(""); err != nil || v != "" {
		t.Fatalf("empty: %q %v", v, err)
	}
	if _, err := r.Resolve("vault:x"); err == nil {
		t.Fatalf("expected error")
	}
}
