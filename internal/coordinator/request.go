package coordinator

import (
	"context"
	"time"

	"ghostd/internal/backend"
	"ghostd/internal/cache"
	"ghostd/internal/watchdog"
	"ghostd/pkg/types"
)

// crashLoopReason tags every status event while the watchdog reports a
// crash loop.
const crashLoopReason = "crash_loop"

// startRequest issues a request for snap on desc. The caller has already
// cleared any previous request of d.
func (c *Coordinator) startRequest(d *docState, snap types.ContextSnapshot, desc types.BackendDescriptor) {
	now := c.clk.Now()
	deadline := now.Add(c.cfg.RequestTimeout)
	ctx, cancel := c.clk.WithDeadline(context.Background(), deadline)
	r := &request{
		id:        snap.Sequence,
		snap:      snap,
		desc:      desc,
		createdAt: now,
		deadline:  deadline,
		ctx:       ctx,
		cancel:    cancel,
	}
	docID, id := d.id, r.id
	r.timer = c.clk.AfterFunc(c.cfg.RequestTimeout, func() { c.post(timeoutMsg{doc: docID, id: id}) })
	d.req = r
	c.setStatus(d, types.StatusEvent{State: types.StatusRequesting, RequestID: r.id, BackendInUse: desc.Name()})
	c.log.Info().Str("document", d.id).Uint64("request_id", r.id).Str("backend", desc.ID).
		Int("prefix_chars", len(snap.Prefix)).Int("suffix_chars", len(snap.Suffix)).Bool("manual", snap.Manual).
		Msg("request started")
	c.dispatch(d.id, r)
}

// dispatch runs one attempt of r on a supervised worker. The worker only
// reads its own copies and reports back through the mailbox.
func (c *Coordinator) dispatch(docID string, r *request) {
	ctx, snap, desc, id, attempt := r.ctx, r.snap, r.desc, r.id, r.attempt
	params := c.cfg.Params
	fields := map[string]any{"document": docID, "request_id": id, "backend": desc.ID, "attempt": attempt}
	c.wd.Go("generate", fields, func() {
		if ctx.Err() != nil {
			return
		}
		start := c.clk.Now()
		var text string
		b, err := c.backends.Get(ctx, desc)
		if err == nil {
			text, err = b.Generate(ctx, snap, params)
		}
		c.post(resultMsg{doc: docID, id: id, attempt: attempt, text: text, err: err, latency: c.clk.Since(start)})
	}, func(cr watchdog.Crash) {
		c.post(crashMsg{doc: docID, id: id, attempt: attempt, crash: cr})
	})
}

// current returns the request of docID matching id and attempt, or nil when
// the message is stale.
func (c *Coordinator) current(docID string, id uint64, attempt int) (*docState, *request) {
	d, ok := c.docs[docID]
	if !ok || d.req == nil || d.req.id != id || d.req.attempt != attempt {
		return nil, nil
	}
	return d, d.req
}

func (c *Coordinator) handleResult(m resultMsg) {
	d, r := c.current(m.doc, m.id, m.attempt)
	if r == nil {
		c.metrics.StaleResults.Inc()
		c.log.Debug().Str("document", m.doc).Uint64("request_id", m.id).Msg("discarding stale result")
		return
	}
	c.metrics.observe(r.desc.ID, m.latency.Seconds())
	if m.err == nil {
		c.finish(d)
		c.metrics.request(r.desc.ID, string(types.OutcomeSuggestion))
		c.cache.Put(cache.Key(r.desc.ID, r.snap.Prefix, r.snap.Suffix), m.text)
		ev := types.StatusEvent{State: types.StatusIdle, RequestID: r.id, BackendInUse: r.desc.Name()}
		if m.text == "" {
			c.setStatus(d, ev)
			return
		}
		c.showSuggestion(d, r.snap, m.text)
		c.setStatus(d, ev)
		c.log.Info().Str("document", d.id).Uint64("request_id", r.id).Str("backend", r.desc.ID).Dur("latency", m.latency).Msg("suggestion ready")
		return
	}

	kind := backend.Classify(m.err)
	switch {
	case kind == types.FailureAcceleratorLoad:
		c.fallback(d, r, m.err)
		return
	case kind.Retryable() && r.attempt < c.cfg.Retries:
		c.scheduleRetry(d, r, kind)
		return
	}
	c.fail(d, r, kind, m.err)
}

// fallback marks the accelerator of r degraded and reissues the request on
// whatever the selector now prefers.
func (c *Coordinator) fallback(d *docState, r *request, err error) {
	c.selector.MarkDegraded(r.desc.ID)
	c.metrics.Fallbacks.Inc()
	c.finish(d)
	c.metrics.request(r.desc.ID, string(types.OutcomeFailed))
	sel, serr := c.selector.Select()
	if serr != nil {
		c.log.Error().Err(err).Str("backend", r.desc.ID).Msg("accelerator failed and no backend is left")
		c.setStatus(d, types.StatusEvent{State: types.StatusOffline, RequestID: r.id, Reason: string(types.FailureAcceleratorLoad)})
		return
	}
	c.log.Warn().Err(err).Str("backend", r.desc.ID).Str("fallback", sel.Descriptor.ID).Msg("accelerator failed to load; falling back")
	c.setStatus(d, types.StatusEvent{
		State:        types.StatusDegraded,
		RequestID:    r.id,
		BackendInUse: sel.Descriptor.Name(),
		Reason:       string(types.FailureAcceleratorLoad),
	})
	snap := r.snap
	snap.Sequence = c.builder.Next(d.id)
	c.startRequest(d, snap, sel.Descriptor)
}

func (c *Coordinator) scheduleRetry(d *docState, r *request, kind types.FailureKind) {
	wait := c.backoff(r.attempt)
	if left := r.deadline.Sub(c.clk.Now()); wait >= left {
		// The deadline fires first; let it.
		wait = left
	}
	r.attempt++
	c.metrics.Retries.WithLabelValues(string(kind)).Inc()
	c.log.Debug().Str("document", d.id).Uint64("request_id", r.id).Int("attempt", r.attempt).
		Dur("backoff", wait).Str("kind", string(kind)).Msg("retrying request")
	docID, id := d.id, r.id
	r.retry = c.clk.AfterFunc(wait, func() { c.post(retryMsg{doc: docID, id: id}) })
}

func (c *Coordinator) handleRetry(m retryMsg) {
	d, ok := c.docs[m.doc]
	if !ok || d.req == nil || d.req.id != m.id || d.req.retry == nil {
		return
	}
	d.req.retry = nil
	c.dispatch(d.id, d.req)
}

// backoff doubles from BaseBackoff per attempt, capped at MaxBackoff.
func (c *Coordinator) backoff(attempt int) time.Duration {
	base, limit := c.cfg.BaseBackoff, c.cfg.MaxBackoff
	if base <= 0 {
		return 0
	}
	if attempt > 16 {
		attempt = 16
	}
	d := base << attempt
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

// fail ends r with a terminal failure and maps kind onto the status shown.
func (c *Coordinator) fail(d *docState, r *request, kind types.FailureKind, err error) {
	c.finish(d)
	outcome := types.OutcomeFailed
	ev := types.StatusEvent{RequestID: r.id, BackendInUse: r.desc.Name(), Reason: string(kind)}
	switch kind {
	case types.FailureAuth:
		ev.State = types.StatusError
	case types.FailureRateLimited:
		ev.State = types.StatusError
		ev.RetryAfter = backend.RetryAfter(err)
	case types.FailureNetwork, types.FailureBackendUnavailable:
		ev.State = types.StatusOffline
	case types.FailureTimeout:
		ev.State, outcome = types.StatusTimedOut, types.OutcomeTimedOut
	case types.FailureCanceled:
		ev.State, outcome = types.StatusCanceled, types.OutcomeCanceled
	default:
		ev.State = types.StatusError
	}
	c.metrics.request(r.desc.ID, string(outcome))
	c.log.Warn().Err(err).Str("document", d.id).Uint64("request_id", r.id).Str("backend", r.desc.ID).
		Str("kind", string(kind)).Int("attempt", r.attempt).Msg("request failed")
	c.setStatus(d, ev)
}

func (c *Coordinator) handleCrash(m crashMsg) {
	d, r := c.current(m.doc, m.id, m.attempt)
	if r == nil {
		return
	}
	ev := types.StatusEvent{State: types.StatusDegraded, RequestID: r.id, BackendInUse: r.desc.Name(), Reason: string(types.FailureWorkerCrashed)}
	if m.crash.Loop {
		ev.State, ev.Reason = types.StatusError, crashLoopReason
	}
	c.finish(d)
	c.metrics.request(r.desc.ID, string(types.OutcomeFailed))
	c.setStatus(d, ev)
}

func (c *Coordinator) handleTimeout(m timeoutMsg) {
	d, ok := c.docs[m.doc]
	if !ok || d.req == nil || d.req.id != m.id {
		return
	}
	r := d.req
	c.fail(d, r, types.FailureTimeout, context.DeadlineExceeded)
}

// finish detaches the request of d and stops its timers. The worker's
// context is canceled so a late backend call gives up.
func (c *Coordinator) finish(d *docState) {
	r := d.req
	if r == nil {
		return
	}
	d.req = nil
	r.cancel()
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.retry != nil {
		r.retry.Stop()
	}
}

// cancelRequest supersedes the request of d without waiting for its worker.
func (c *Coordinator) cancelRequest(d *docState, reason string) {
	r := d.req
	if r == nil {
		return
	}
	c.finish(d)
	c.metrics.request(r.desc.ID, string(types.OutcomeCanceled))
	c.log.Debug().Str("document", d.id).Uint64("request_id", r.id).Str("reason", reason).Msg("request canceled")
	c.setStatus(d, types.StatusEvent{State: types.StatusCanceled, RequestID: r.id, BackendInUse: r.desc.Name(), Reason: reason})
}

// abandon drops everything pending for d without publishing.
func (c *Coordinator) abandon(d *docState) {
	if d.req != nil {
		c.metrics.request(d.req.desc.ID, string(types.OutcomeCanceled))
	}
	c.finish(d)
	d.suggestion = nil
}
