// Package coordinator turns a stream of edits into debounced, speculatively
// reused, cancellable completion requests. All per-document state is owned
// by one control-loop goroutine; host calls, timers and workers only post
// messages to it.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ghostd/internal/backend"
	"ghostd/internal/cache"
	"ghostd/internal/config"
	"ghostd/internal/debounce"
	"ghostd/internal/document"
	"ghostd/internal/snapshot"
	"ghostd/internal/watchdog"
	"ghostd/pkg/types"
)

// ErrStopped is returned by queries once Run has returned.
var ErrStopped = errors.New("coordinator stopped")

// Config holds the timing and generation policy of the coordinator.
type Config struct {
	Debounce       time.Duration
	MaxWait        time.Duration
	RequestTimeout time.Duration
	PrefixChars    int
	SuffixChars    int
	// Retries is the number of extra attempts after a transient failure.
	Retries     int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Params      backend.Params
}

// ConfigFrom projects the daemon configuration onto the coordinator.
func ConfigFrom(c config.Config) Config {
	return Config{
		Debounce:       c.Debounce(),
		MaxWait:        c.MaxWait(),
		RequestTimeout: c.RequestTimeout(),
		PrefixChars:    c.PrefixChars,
		SuffixChars:    c.SuffixChars,
		Retries:        c.Retries(),
		BaseBackoff:    c.BaseBackoff(),
		MaxBackoff:     c.MaxBackoff(),
		Params: backend.Params{
			MaxTokens:    c.MaxCompletionTokens,
			FIMMaxTokens: c.FIMMaxTokens,
			Temperature:  c.Temperature,
		},
	}
}

// BackendSource hands out backends for descriptors, loading them lazily.
// *backend.Pool implements it.
type BackendSource interface {
	Get(ctx context.Context, d types.BackendDescriptor) (backend.Backend, error)
	SetProvider(pc types.ProviderConfig)
}

// Options are the collaborators of a Coordinator. Documents, Selector and
// Backends are required.
type Options struct {
	Clock     clock.Clock
	Log       zerolog.Logger
	Documents document.Accessor
	Selector  *backend.Selector
	Backends  BackendSource
	Watchdog  *watchdog.Supervisor
	Cache     *cache.Suggestions
	Publisher EventPublisher
	Metrics   *Metrics
}

// Coordinator is the completion coordinator for any number of documents.
type Coordinator struct {
	cfg      Config
	clk      clock.Clock
	log      zerolog.Logger
	selector *backend.Selector
	backends BackendSource
	wd       *watchdog.Supervisor
	cache    *cache.Suggestions
	pub      EventPublisher
	metrics  *Metrics
	session  string
	started  time.Time

	box      *mailbox
	done     chan struct{}
	stopOnce sync.Once

	// Owned by the loop goroutine.
	builder  *snapshot.Builder
	debounce *debounce.Scheduler
	docs     map[string]*docState
}

// New wires a Coordinator. Call Run to start its control loop.
func New(cfg Config, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Publisher == nil {
		opts.Publisher = noopPublisher{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Watchdog == nil {
		opts.Watchdog = watchdog.New(opts.Clock, opts.Log, watchdog.Options{Crashes: opts.Metrics.WorkerCrashes})
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	c := &Coordinator{
		cfg:      cfg,
		clk:      opts.Clock,
		log:      opts.Log.With().Str("component", "coordinator").Logger(),
		selector: opts.Selector,
		backends: opts.Backends,
		wd:       opts.Watchdog,
		cache:    opts.Cache,
		pub:      opts.Publisher,
		metrics:  opts.Metrics,
		session:  uuid.NewString(),
		started:  opts.Clock.Now(),
		box:      newMailbox(),
		done:     make(chan struct{}),
		builder:  snapshot.NewBuilder(opts.Documents, cfg.PrefixChars, cfg.SuffixChars),
		docs:     make(map[string]*docState),
	}
	c.debounce = debounce.New(c.clk, cfg.Debounce, cfg.MaxWait, func(t debounce.Trigger) {
		c.post(fireMsg{trigger: t})
	})
	return c
}

// SessionID identifies this coordinator instance.
func (c *Coordinator) SessionID() string { return c.session }

// Run processes messages until ctx is done. In-flight requests are canceled
// on return.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info().Str("session", c.session).Dur("debounce", c.cfg.Debounce).
		Dur("timeout", c.cfg.RequestTimeout).Msg("coordinator started")
	defer c.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.box.ready:
			for _, m := range c.box.drain() {
				c.handle(m)
			}
		}
	}
}

func (c *Coordinator) shutdown() {
	c.stopOnce.Do(func() {
		c.debounce.Stop()
		for _, d := range c.docs {
			c.abandon(d)
		}
		close(c.done)
		c.log.Info().Msg("coordinator stopped")
	})
}

func (c *Coordinator) post(m message) { c.box.put(m) }

// SubmitEdit reports an edit, cursor move, paste or selection change. The
// host must have applied the edit to the document accessor first.
func (c *Coordinator) SubmitEdit(ev types.EditEvent) { c.post(editMsg{ev: ev}) }

// DismissSuggestion hides the active suggestion of docID and abandons any
// pending work for it. Calling it again has no further effect.
func (c *Coordinator) DismissSuggestion(docID string) { c.post(dismissMsg{doc: docID}) }

// TriggerManualCompletion requests a completion now, skipping the debounce.
func (c *Coordinator) TriggerManualCompletion(docID string) { c.post(manualMsg{doc: docID}) }

// CloseDocument drops all state for docID.
func (c *Coordinator) CloseDocument(docID string) { c.post(closeMsg{doc: docID}) }

// SetProvider switches the provider and pin. Health recorded earlier in the
// session is kept, so a degraded accelerator stays degraded. In-flight
// requests are superseded.
func (c *Coordinator) SetProvider(pc types.ProviderConfig) error {
	if err := c.selector.SetProvider(pc); err != nil {
		return err
	}
	c.backends.SetProvider(pc)
	c.post(providerMsg{pc: pc})
	return nil
}

// AcceptSuggestion takes the remaining ghost text of docID. ok is false when
// no suggestion is shown.
func (c *Coordinator) AcceptSuggestion(ctx context.Context, docID string) (text string, id uint64, ok bool, err error) {
	reply := make(chan acceptReply, 1)
	c.post(acceptMsg{doc: docID, reply: reply})
	select {
	case r := <-reply:
		return r.text, r.id, r.ok, nil
	case <-ctx.Done():
		return "", 0, false, ctx.Err()
	case <-c.done:
		return "", 0, false, ErrStopped
	}
}

// Status returns a snapshot of the coordinator state.
func (c *Coordinator) Status(ctx context.Context) (types.StatusResponse, error) {
	reply := make(chan types.StatusResponse, 1)
	c.post(statusMsg{reply: reply})
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return types.StatusResponse{}, ctx.Err()
	case <-c.done:
		return types.StatusResponse{}, ErrStopped
	}
}

// Backends returns the ranked descriptors with their health.
func (c *Coordinator) Backends() types.BackendsResponse {
	return types.BackendsResponse{Backends: c.selector.Descriptors(), Pinned: c.selector.Pinned()}
}

// Ready reports whether a backend is available for the next request.
func (c *Coordinator) Ready() bool { return c.selector.Ready() }

// mailbox is an unbounded FIFO so posting never blocks the caller.
type mailbox struct {
	mu    sync.Mutex
	queue []message
	ready chan struct{}
}

func newMailbox() *mailbox { return &mailbox{ready: make(chan struct{}, 1)} }

func (b *mailbox) put(m message) {
	b.mu.Lock()
	b.queue = append(b.queue, m)
	b.mu.Unlock()
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

func (b *mailbox) drain() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue
	b.queue = nil
	return q
}
