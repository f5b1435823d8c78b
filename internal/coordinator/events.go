package coordinator

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"ghostd/pkg/types"
)

// EventPublisher receives GhostTextUpdate and StatusEvent notifications from
// the control loop. Publish is called on the loop goroutine; implementations
// must not block and must not panic.
type EventPublisher interface {
	Publish(types.Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(types.Event) {}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(types.Event)

func (f PublisherFunc) Publish(e types.Event) { f(e) }

// MemoryPublisher stores events in memory. Used by tests and diagnostics.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []types.Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e types.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Broadcaster fans events out to subscribers such as /v1/events streams.
// A subscriber that falls behind loses events rather than stalling the loop.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[string]chan types.Event
	dropped atomic.Uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]chan types.Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (string, <-chan types.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	id := uuid.NewString()
	ch := make(chan types.Event, buffer)
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Publish(e types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped counts events discarded for slow subscribers.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// multiPublisher publishes to each publisher in order.
type multiPublisher []EventPublisher

func (m multiPublisher) Publish(e types.Event) {
	for _, p := range m {
		p.Publish(e)
	}
}

// Publishers combines publishers; nil entries are skipped.
func Publishers(ps ...EventPublisher) EventPublisher {
	var out multiPublisher
	for _, p := range ps {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
