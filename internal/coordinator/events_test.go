package coordinator

import (
	"testing"

	"ghostd/pkg/types"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster()
	_, a, cancelA := b.Subscribe(4)
	_, c, cancelC := b.Subscribe(4)
	defer cancelC()

	b.Publish(types.Event{Type: types.EventStatus, Status: &types.StatusEvent{State: types.StatusIdle}})
	for _, ch := range []<-chan types.Event{a, c} {
		if e := <-ch; e.Type != types.EventStatus {
			t.Fatalf("event = %+v", e)
		}
	}

	cancelA()
	cancelA()
	if _, open := <-a; open {
		t.Fatalf("channel should be closed after cancel")
	}
	if n := b.Subscribers(); n != 1 {
		t.Fatalf("subscribers = %d", n)
	}
}

func TestBroadcasterDropsForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster()
	_, ch, cancel := b.Subscribe(1)
	defer cancel()
	for i := 0; i < 3; i++ {
		b.Publish(types.Event{Type: types.EventGhostText})
	}
	if got := b.Dropped(); got != 2 {
		t.Fatalf("dropped = %d", got)
	}
	if len(ch) != 1 {
		t.Fatalf("buffered = %d", len(ch))
	}
}

func TestPublishersSkipsNil(t *testing.T) {
	m := NewMemoryPublisher()
	var n int
	p := Publishers(nil, m, PublisherFunc(func(types.Event) { n++ }))
	p.Publish(types.Event{Type: types.EventStatus})
	if len(m.Events()) != 1 || n != 1 {
		t.Fatalf("memory=%d func=%d", len(m.Events()), n)
	}
}
