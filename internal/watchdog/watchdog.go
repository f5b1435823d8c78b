// Package watchdog runs backend calls in supervised worker goroutines. A
// panicking worker is recovered and reported; the next job always gets a
// fresh worker, so restarts are unconditional and unlimited.
package watchdog

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Options tune crash-loop detection and heartbeat logging.
type Options struct {
	// CrashLoopThreshold crashes within CrashLoopWindow mark a crash loop.
	CrashLoopThreshold int
	CrashLoopWindow    time.Duration
	// Heartbeat is the interval of "still running" logs; zero disables them.
	Heartbeat time.Duration
	// Crashes is incremented once per recovered panic when set.
	Crashes prometheus.Counter
}

// Crash describes one recovered worker panic.
type Crash struct {
	Job   string
	Value any
	Stack []byte
	At    time.Time
	// Loop is set when this crash puts the supervisor into a crash loop.
	Loop bool
	// Total counts crashes since the supervisor was created.
	Total int
}

func (c Crash) Error() string { return fmt.Sprintf("worker %s crashed: %v", c.Job, c.Value) }

// Supervisor owns worker goroutines.
type Supervisor struct {
	clk  clock.Clock
	log  zerolog.Logger
	opts Options

	mu      sync.Mutex
	recent  []time.Time
	total   int
	running int
}

// New returns a Supervisor using clk for timestamps and heartbeats.
func New(clk clock.Clock, log zerolog.Logger, opts Options) *Supervisor {
	if opts.CrashLoopThreshold <= 0 {
		opts.CrashLoopThreshold = 3
	}
	if opts.CrashLoopWindow <= 0 {
		opts.CrashLoopWindow = 30 * time.Second
	}
	return &Supervisor{clk: clk, log: log, opts: opts}
}

// Go runs fn on a new worker. If fn panics, onCrash is called on that worker
// with the recovered value; the panic never reaches the caller.
func (s *Supervisor) Go(job string, fields map[string]any, fn func(), onCrash func(Crash)) {
	s.mu.Lock()
	s.running++
	s.mu.Unlock()
	log := s.log.With().Str("job", job).Fields(fields).Logger()
	stop := s.heartbeat(log)
	go s.run(job, log, stop, fn, onCrash)
}

func (s *Supervisor) run(job string, log zerolog.Logger, stop func(), fn func(), onCrash func(Crash)) {
	defer func() {
		stop()
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
		if v := recover(); v != nil {
			c := s.record(job, v, debug.Stack())
			ev := log.Error().Interface("panic", v).Int("crashes", c.Total)
			if c.Loop {
				ev = ev.Bool("crash_loop", true)
			}
			ev.Msg("worker crashed; restarting")
			if onCrash != nil {
				onCrash(c)
			}
		}
	}()
	fn()
}

// heartbeat logs while the job is still running and returns a stop func.
func (s *Supervisor) heartbeat(log zerolog.Logger) func() {
	if s.opts.Heartbeat <= 0 {
		return func() {}
	}
	start := s.clk.Now()
	t := s.clk.Ticker(s.opts.Heartbeat)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case now := <-t.C:
				log.Info().Dur("elapsed", now.Sub(start)).Msg("backend call still running")
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			close(done)
		})
	}
}

func (s *Supervisor) record(job string, v any, stack []byte) Crash {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.recent = append(s.pruneLocked(now), now)
	if s.opts.Crashes != nil {
		s.opts.Crashes.Inc()
	}
	return Crash{
		Job:   job,
		Value: v,
		Stack: stack,
		At:    now,
		Loop:  len(s.recent) >= s.opts.CrashLoopThreshold,
		Total: s.total,
	}
}

func (s *Supervisor) pruneLocked(now time.Time) []time.Time {
	keep := s.recent[:0]
	for _, t := range s.recent {
		if now.Sub(t) < s.opts.CrashLoopWindow {
			keep = append(keep, t)
		}
	}
	return keep
}

// CrashLooping reports whether the crash-loop threshold is currently met.
func (s *Supervisor) CrashLooping() bool {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = s.pruneLocked(now)
	return len(s.recent) >= s.opts.CrashLoopThreshold
}

// Crashes returns the number of recovered panics.
func (s *Supervisor) Crashes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Running returns the number of live workers.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
