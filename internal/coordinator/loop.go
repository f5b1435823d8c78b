package coordinator

import (
	"sort"

	"ghostd/internal/cache"
	"ghostd/internal/debounce"
	"ghostd/internal/speculative"
	"ghostd/pkg/types"
)

func (c *Coordinator) handle(m message) {
	switch m := m.(type) {
	case editMsg:
		c.handleEdit(m.ev)
	case fireMsg:
		c.handleFire(m.trigger)
	case manualMsg:
		d := c.doc(m.doc)
		c.disarm(d)
		c.trigger(d, true)
	case acceptMsg:
		m.reply <- c.handleAccept(m.doc)
	case dismissMsg:
		c.handleDismiss(m.doc)
	case closeMsg:
		c.handleClose(m.doc)
	case providerMsg:
		c.handleProvider(m.pc)
	case statusMsg:
		m.reply <- c.status()
	case resultMsg:
		c.handleResult(m)
	case crashMsg:
		c.handleCrash(m)
	case timeoutMsg:
		c.handleTimeout(m)
	case retryMsg:
		c.handleRetry(m)
	default:
		c.log.Error().Type("message", m).Msg("unknown message")
	}
}

// handleFire starts the debounced request unless the trigger belongs to an
// arming that was since canceled or replaced.
func (c *Coordinator) handleFire(t debounce.Trigger) {
	d, ok := c.docs[t.DocumentID]
	if !ok || d.armed == 0 || d.armed != t.Gen {
		c.log.Debug().Str("document", t.DocumentID).Uint64("gen", t.Gen).Msg("ignoring late debounce trigger")
		return
	}
	d.armed = 0
	c.metrics.DebounceTriggers.Inc()
	c.log.Debug().Str("document", d.id).Int("edits", t.Edits).Bool("forced", t.Forced).Msg("debounce fired")
	c.trigger(d, false)
}

func (c *Coordinator) doc(id string) *docState {
	d, ok := c.docs[id]
	if !ok {
		d = &docState{id: id, status: types.StatusIdle}
		c.docs[id] = d
	}
	return d
}

// handleEdit runs the speculative fast path first; anything it cannot absorb
// clears the suggestion and re-arms the debounce.
func (c *Coordinator) handleEdit(ev types.EditEvent) {
	d := c.doc(ev.DocumentID)
	if s := d.suggestion; s != nil {
		switch s.Advance(ev) {
		case speculative.Advanced:
			c.metrics.SpeculativeHits.Inc()
			if !s.Exhausted() {
				c.publishGhost(s.Update())
				return
			}
			c.clearSuggestion(d)
			c.arm(d)
			return
		case speculative.Unchanged:
			return
		}
		c.clearSuggestion(d)
	}
	c.arm(d)
}

// arm starts or restarts the debounce for d. A request in flight is for
// context the user has since changed, so it is superseded here.
func (c *Coordinator) arm(d *docState) {
	if d.req != nil {
		c.cancelRequest(d, "superseded")
	}
	c.debounce.Notify(d.id)
	d.armed = c.debounce.Generation(d.id)
	c.setStatus(d, types.StatusEvent{State: types.StatusDebouncing})
}

// disarm cancels the pending debounce of d. It reports whether d was armed,
// including when the timer already fired but its trigger is still queued.
func (c *Coordinator) disarm(d *docState) bool {
	canceled := c.debounce.Cancel(d.id)
	armed := d.armed != 0
	d.armed = 0
	return canceled || armed
}

// trigger snapshots d and starts a request for it unless the context is
// empty, no backend is usable, or the cache already has the answer.
func (c *Coordinator) trigger(d *docState, manual bool) {
	snap, ok := c.builder.Build(d.id, manual)
	if !ok {
		c.setStatus(d, types.StatusEvent{State: types.StatusIdle, Reason: "unknown_document"})
		return
	}
	c.clearSuggestion(d)
	if d.req != nil {
		c.cancelRequest(d, "superseded")
	}
	if snap.Empty() {
		ev := types.StatusEvent{State: types.StatusIdle}
		if manual {
			ev.Reason = "empty_context"
		}
		c.setStatus(d, ev)
		return
	}
	sel, err := c.selector.Select()
	if err != nil {
		c.setStatus(d, types.StatusEvent{State: types.StatusOffline, Reason: string(types.FailureBackendUnavailable)})
		return
	}
	if text, hit := c.cache.Get(cache.Key(sel.Descriptor.ID, snap.Prefix, snap.Suffix)); hit {
		c.metrics.CacheHits.Inc()
		c.showSuggestion(d, snap, text)
		c.setStatus(d, types.StatusEvent{State: types.StatusIdle, RequestID: snap.Sequence, BackendInUse: sel.Descriptor.Name(), Reason: "cached"})
		return
	}
	c.startRequest(d, snap, sel.Descriptor)
}

func (c *Coordinator) handleAccept(docID string) acceptReply {
	d, ok := c.docs[docID]
	if !ok || d.suggestion == nil {
		return acceptReply{}
	}
	r := acceptReply{text: d.suggestion.Remaining(), id: d.suggestion.Origin, ok: true}
	c.clearSuggestion(d)
	c.log.Debug().Str("document", d.id).Uint64("request_id", r.id).Int("chars", len([]rune(r.text))).Msg("suggestion accepted")
	c.arm(d)
	return r
}

func (c *Coordinator) handleDismiss(docID string) {
	d, ok := c.docs[docID]
	if !ok {
		return
	}
	changed := c.disarm(d)
	if d.suggestion != nil {
		c.clearSuggestion(d)
		changed = true
	}
	if d.req != nil {
		c.cancelRequest(d, "dismissed")
		changed = true
	}
	if changed {
		c.setStatus(d, types.StatusEvent{State: types.StatusIdle, Reason: "dismissed"})
	}
}

func (c *Coordinator) handleClose(docID string) {
	d, ok := c.docs[docID]
	if !ok {
		return
	}
	c.disarm(d)
	c.abandon(d)
	delete(c.docs, docID)
}

func (c *Coordinator) handleProvider(pc types.ProviderConfig) {
	for _, d := range c.docs {
		if d.req != nil {
			c.cancelRequest(d, "provider_changed")
		}
	}
	ev := types.StatusEvent{State: types.StatusIdle, Reason: "provider_changed"}
	if sel, err := c.selector.Select(); err == nil {
		ev.BackendInUse = sel.Descriptor.Name()
	} else {
		ev.State = types.StatusOffline
	}
	c.log.Info().Str("provider", string(pc.Provider)).Str("backend", ev.BackendInUse).Msg("provider changed")
	c.publishStatus(ev)
}

func (c *Coordinator) status() types.StatusResponse {
	resp := types.StatusResponse{
		SessionID:     c.session,
		Provider:      c.selector.Provider().Provider,
		WorkerCrashes: uint64(c.wd.Crashes()),
		UptimeSeconds: int64(c.clk.Now().Sub(c.started).Seconds()),
		Documents:     []types.DocumentStatus{},
	}
	if resp.Provider == "" {
		resp.Provider = types.ProviderLocal
	}
	if sel, err := c.selector.Select(); err == nil {
		resp.BackendInUse = sel.Descriptor.Name()
	}
	for _, d := range c.docs {
		ds := types.DocumentStatus{DocumentID: d.id, State: d.status, LastSequence: c.builder.Last(d.id)}
		if d.req != nil {
			ds.InflightID = d.req.id
		}
		if d.suggestion != nil {
			ds.GhostText = d.suggestion.Remaining()
		}
		resp.Documents = append(resp.Documents, ds)
	}
	sort.Slice(resp.Documents, func(i, j int) bool { return resp.Documents[i].DocumentID < resp.Documents[j].DocumentID })
	return resp
}

func (c *Coordinator) showSuggestion(d *docState, snap types.ContextSnapshot, text string) {
	d.suggestion = speculative.New(snap, text, snap.Sequence)
	c.publishGhost(d.suggestion.Update())
}

// clearSuggestion removes the ghost text of d, if any.
func (c *Coordinator) clearSuggestion(d *docState) {
	if d.suggestion == nil {
		return
	}
	u := d.suggestion.Update()
	u.Text = ""
	d.suggestion = nil
	c.publishGhost(u)
}

// setStatus records and publishes a transition of d. Repeated Debouncing
// notifications within one burst are collapsed.
func (c *Coordinator) setStatus(d *docState, ev types.StatusEvent) {
	if ev.State == types.StatusDebouncing && d.status == types.StatusDebouncing {
		return
	}
	// A crash loop stays visible until the window clears.
	if ev.Reason == "" && c.wd.CrashLooping() {
		ev.Reason = crashLoopReason
	}
	d.status = ev.State
	ev.DocumentID = d.id
	c.publishStatus(ev)
}

func (c *Coordinator) publishStatus(ev types.StatusEvent) {
	c.pub.Publish(types.Event{Type: types.EventStatus, At: c.clk.Now(), Status: &ev})
}

func (c *Coordinator) publishGhost(u types.GhostTextUpdate) {
	c.pub.Publish(types.Event{Type: types.EventGhostText, At: c.clk.Now(), Ghost: &u})
}
