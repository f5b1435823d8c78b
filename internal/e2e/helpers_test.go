package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ghostd/internal/backend"
	"ghostd/internal/coordinator"
	"ghostd/internal/document"
	"ghostd/internal/httpapi"
	"ghostd/internal/manager"
	"ghostd/pkg/types"
)

// createTempModelsDir creates a temporary directory populated with empty .gguf files
// and returns the directory path and the list of model IDs (filenames).
func createTempModelsDir(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir, names
}

// newServer wires documents, coordinator, manager and HTTP API around gen,
// which stands in for every backend.
func newServer(t *testing.T, modelsDir string, gen backend.Func) (*httptest.Server, *coordinator.Coordinator) {
	t.Helper()
	docs := document.NewStore()
	events := coordinator.NewBroadcaster()
	pool := backend.NewPool(backend.OpenerFunc(func(types.BackendDescriptor, types.ProviderConfig) (backend.Backend, error) {
		return gen, nil
	}), zerolog.Nop())
	coord := coordinator.New(coordinator.Config{
		Debounce:       20 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
		PrefixChars:    2000,
		SuffixChars:    1000,
	}, coordinator.Options{
		Log:       zerolog.Nop(),
		Documents: docs,
		Selector:  backend.NewSelector(nil),
		Backends:  pool,
		Publisher: events,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = coord.Run(ctx)
		close(done)
	}()
	mgr := manager.New(docs, coord, events, modelsDir, zerolog.Nop())
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv, coord
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	return httpDo(t, http.MethodGet, url, nil)
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	return httpDo(t, http.MethodPost, url, payload)
}

func httpPutJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	return httpDo(t, http.MethodPut, url, payload)
}

func httpDo(t *testing.T, method, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// eventStream is an open /v1/events subscription.
type eventStream struct {
	t      *testing.T
	lines  chan types.Event
	cancel context.CancelFunc
}

func openEvents(t *testing.T, url string) *eventStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("events: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		t.Fatalf("events status %d", resp.StatusCode)
	}
	s := &eventStream{t: t, lines: make(chan types.Event, 256), cancel: cancel}
	go func() {
		defer resp.Body.Close()
		defer close(s.lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			var e types.Event
			if json.Unmarshal(sc.Bytes(), &e) == nil {
				s.lines <- e
			}
		}
	}()
	t.Cleanup(cancel)
	return s
}

// waitFor returns the first event matching ok, failing after 3s.
func (s *eventStream) waitFor(what string, ok func(types.Event) bool) types.Event {
	s.t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e, open := <-s.lines:
			if !open {
				s.t.Fatalf("event stream closed waiting for %s", what)
			}
			if ok(e) {
				return e
			}
		case <-timeout:
			s.t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func ghostText(text string) func(types.Event) bool {
	return func(e types.Event) bool { return e.Ghost != nil && e.Ghost.Text == text }
}

func statusState(st types.StatusState) func(types.Event) bool {
	return func(e types.Event) bool { return e.Status != nil && e.Status.State == st }
}
