package watchdog

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func waitCrash(t *testing.T, ch <-chan Crash) Crash {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for crash report")
	}
	return Crash{}
}

func TestGo_RecoversPanicAndReports(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_crashes_total"})
	s := New(clock.NewMock(), zerolog.Nop(), Options{Crashes: counter})
	ch := make(chan Crash, 1)
	s.Go("generate", map[string]any{"document": "d"}, func() { panic("boom") }, func(c Crash) { ch <- c })
	c := waitCrash(t, ch)
	if c.Value != "boom" || c.Job != "generate" || c.Total != 1 || c.Loop || len(c.Stack) == 0 {
		t.Fatalf("crash=%+v", c)
	}
	if !strings.Contains(c.Error(), "boom") {
		t.Fatalf("error=%q", c.Error())
	}
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Fatalf("counter=%v", got)
	}
}

func TestGo_NextJobRunsAfterCrash(t *testing.T) {
	s := New(clock.NewMock(), zerolog.Nop(), Options{})
	ch := make(chan Crash, 1)
	s.Go("a", nil, func() { panic("x") }, func(c Crash) { ch <- c })
	waitCrash(t, ch)
	done := make(chan struct{})
	s.Go("b", nil, func() { close(done) }, nil)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not restart")
	}
}

func TestCrashLoopDetection(t *testing.T) {
	mock := clock.NewMock()
	s := New(mock, zerolog.Nop(), Options{CrashLoopThreshold: 3, CrashLoopWindow: 30 * time.Second})
	ch := make(chan Crash, 1)
	var last Crash
	for i := 0; i < 3; i++ {
		s.Go("g", nil, func() { panic(i) }, func(c Crash) { ch <- c })
		last = waitCrash(t, ch)
		mock.Add(5 * time.Second)
	}
	if !last.Loop || !s.CrashLooping() || s.Crashes() != 3 {
		t.Fatalf("expected crash loop, last=%+v", last)
	}
	mock.Add(30 * time.Second)
	if s.CrashLooping() {
		t.Fatalf("crash loop must clear once the window passes")
	}
}

func TestHeartbeatLogsWhileRunning(t *testing.T) {
	mock := clock.NewMock()
	buf := &syncBuffer{}
	s := New(mock, zerolog.New(buf), Options{Heartbeat: 2 * time.Second})
	release := make(chan struct{})
	finished := make(chan struct{})
	s.Go("generate", nil, func() { <-release; close(finished) }, nil)
	mock.Add(2 * time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), "backend call still running") {
		if time.Now().After(deadline) {
			t.Fatalf("no heartbeat logged: %q", buf.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
	<-finished
	deadline = time.Now().Add(2 * time.Second)
	for s.Running() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("worker still counted as running")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
