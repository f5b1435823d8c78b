package coordinator

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"ghostd/internal/debounce"
	"ghostd/internal/speculative"
	"ghostd/internal/watchdog"
	"ghostd/pkg/types"
)

// docState is the per-document state. Only the loop goroutine touches it.
type docState struct {
	id         string
	status     types.StatusState
	suggestion *speculative.State
	// armed is the debounce generation the loop is waiting on; zero when
	// disarmed. A fire for any other generation arrived too late.
	armed uint64
	// req is the single in-flight request; nil when none.
	req *request
}

// request is one CompletionRequest. Its id is the snapshot sequence.
type request struct {
	id        uint64
	snap      types.ContextSnapshot
	desc      types.BackendDescriptor
	createdAt time.Time
	deadline  time.Time
	attempt   int
	ctx       context.Context
	cancel    context.CancelFunc
	timer     *clock.Timer
	retry     *clock.Timer
}

type message interface{}

type editMsg struct{ ev types.EditEvent }

type acceptMsg struct {
	doc   string
	reply chan acceptReply
}

type acceptReply struct {
	text string
	id   uint64
	ok   bool
}

type dismissMsg struct{ doc string }

type manualMsg struct{ doc string }

type closeMsg struct{ doc string }

type providerMsg struct{ pc types.ProviderConfig }

type statusMsg struct{ reply chan types.StatusResponse }

type fireMsg struct{ trigger debounce.Trigger }

type resultMsg struct {
	doc     string
	id      uint64
	attempt int
	text    string
	err     error
	latency time.Duration
}

type crashMsg struct {
	doc     string
	id      uint64
	attempt int
	crash   watchdog.Crash
}

type timeoutMsg struct {
	doc string
	id  uint64
}

type retryMsg struct {
	doc string
	id  uint64
}
