// Package debounce coalesces bursts of edits into a single trigger once a
// document has been quiet for the configured interval.
package debounce

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State of one document in the scheduler.
type State int

const (
	Idle State = iota
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "idle"
}

// Trigger is delivered when a burst ends.
type Trigger struct {
	DocumentID string
	// BurstStart is when the first edit of the burst arrived.
	BurstStart time.Time
	// ArmedAt is when the last edit re-armed the timer.
	ArmedAt time.Time
	FiredAt time.Time
	// Edits counts notifications coalesced into this trigger.
	Edits int
	// Forced is set when max-wait cut the burst short.
	Forced bool
	// Gen is the arming generation that produced this trigger. It matches
	// Generation(DocumentID) as returned right after the last Notify.
	Gen uint64
}

type pending struct {
	gen        uint64
	timer      *clock.Timer
	burstStart time.Time
	armedAt    time.Time
	deadline   time.Time
	edits      int
	forced     bool
}

// Scheduler is a per-document trailing debounce. The fire callback runs on a
// timer goroutine and must not block; the coordinator forwards it into its
// inbox.
type Scheduler struct {
	clk  clock.Clock
	fire func(Trigger)

	mu       sync.Mutex
	interval time.Duration
	maxWait  time.Duration
	gen      uint64
	docs     map[string]*pending
}

// New returns a Scheduler. maxWait <= 0 disables forced firing, which keeps
// the classic contract of exactly one trigger per unbroken burst.
func New(clk clock.Clock, interval, maxWait time.Duration, fire func(Trigger)) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{clk: clk, fire: fire, interval: interval, maxWait: maxWait, docs: make(map[string]*pending)}
}

// Notify records an edit (or cursor move) for docID and re-arms its timer so
// the deadline is measured from this call. It reports whether the document
// moved from Idle to Pending.
func (s *Scheduler) Notify(docID string) bool {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	p, armed := s.docs[docID]
	if armed {
		p.timer.Stop()
	} else {
		p = &pending{burstStart: now}
		s.docs[docID] = p
	}
	s.gen++
	p.gen = s.gen
	p.edits++
	p.armedAt = now

	delay := s.interval
	p.forced = false
	if s.maxWait > 0 {
		if left := s.maxWait - now.Sub(p.burstStart); left < delay {
			delay = max(left, 0)
			p.forced = true
		}
	}
	p.deadline = now.Add(delay)
	gen := p.gen
	p.timer = s.clk.AfterFunc(delay, func() { s.expire(docID, gen) })
	return !armed
}

// Generation returns the arming generation of docID, zero when idle.
func (s *Scheduler) Generation(docID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.docs[docID]; ok {
		return p.gen
	}
	return 0
}

// Cancel disarms docID. It reports whether a trigger was pending.
func (s *Scheduler) Cancel(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.docs[docID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.docs, docID)
	return true
}

// State returns the scheduler state of docID and, when pending, its deadline.
func (s *Scheduler) State(docID string) (State, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.docs[docID]; ok {
		return Pending, p.deadline
	}
	return Idle, time.Time{}
}

// SetInterval changes the quiet interval used for subsequent notifications.
func (s *Scheduler) SetInterval(interval, maxWait time.Duration) {
	s.mu.Lock()
	s.interval, s.maxWait = interval, maxWait
	s.mu.Unlock()
}

// Stop disarms every document.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.docs {
		p.timer.Stop()
		delete(s.docs, id)
	}
}

func (s *Scheduler) expire(docID string, gen uint64) {
	s.mu.Lock()
	p, ok := s.docs[docID]
	// A re-arm between the timer firing and this callback taking the lock
	// leaves a newer generation in place; that timer will fire instead.
	if !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.docs, docID)
	s.mu.Unlock()

	s.fire(Trigger{
		DocumentID: docID,
		BurstStart: p.burstStart,
		ArmedAt:    p.armedAt,
		FiredAt:    s.clk.Now(),
		Edits:      p.edits,
		Forced:     p.forced,
		Gen:        gen,
	})
}
