package types

import "time"

// EditKind classifies an EditEvent so the coordinator can tell typing apart
// from every other way a document changes.
type EditKind string

const (
	// EditInsert is typed text inserted at the cursor.
	EditInsert EditKind = "insert"
	// EditDelete removes text without inserting any.
	EditDelete EditKind = "delete"
	// EditReplace replaces a selection with typed text.
	EditReplace EditKind = "replace"
	// EditPaste inserts clipboard content.
	EditPaste EditKind = "paste"
	// EditCursor moves the cursor without changing text.
	EditCursor EditKind = "cursor"
	// EditSelection changes the selection without changing text.
	EditSelection EditKind = "selection"
)

// ChangesText reports whether edits of this kind modify the document.
func (k EditKind) ChangesText() bool {
	switch k {
	case EditInsert, EditDelete, EditReplace, EditPaste:
		return true
	}
	return false
}

// EditEvent is produced by the host on every keystroke, cursor move, paste, or
// selection change. Offsets are measured in characters (runes).
type EditEvent struct {
	// Document the edit belongs to.
	// example: notes.md
	DocumentID string `json:"document_id" example:"notes.md"`
	// Kind of change.
	// example: insert
	Kind EditKind `json:"kind" example:"insert"`
	// Offset at which RemovedLen characters were removed and TextDelta inserted.
	// example: 8
	Offset int `json:"offset" example:"8"`
	// Number of characters removed at Offset.
	// example: 0
	RemovedLen int `json:"removed_len,omitempty" example:"0"`
	// Inserted text, empty for pure deletions and cursor moves.
	// example: n
	TextDelta string `json:"text_delta,omitempty" example:"n"`
	// Cursor position after the edit was applied.
	// example: 9
	CursorOffset int `json:"cursor_offset" example:"9"`
	// When the host observed the edit.
	Timestamp time.Time `json:"timestamp"`
}

// ContextSnapshot is a bounded, immutable view of the text around the cursor.
type ContextSnapshot struct {
	DocumentID string `json:"document_id"`
	// Per-document strictly increasing counter. Doubles as the request id.
	Sequence uint64 `json:"sequence"`
	// Text before the cursor, trimmed to the configured window.
	Prefix string `json:"prefix"`
	// Text after the cursor, trimmed to the configured window.
	Suffix string `json:"suffix"`
	// Cursor offset in the full document.
	CursorOffset int `json:"cursor_offset"`
	// Manual is set when the snapshot was taken for an explicit user request.
	Manual bool `json:"manual,omitempty"`
	// Trimmed is set when either window had to be cut to fit.
	Trimmed bool `json:"trimmed,omitempty"`
}

// Empty reports whether there is no context to complete from.
func (s ContextSnapshot) Empty() bool {
	return s.Prefix == "" && s.Suffix == ""
}

// FIM reports whether the snapshot needs fill-in-the-middle generation.
func (s ContextSnapshot) FIM() bool { return s.Suffix != "" }

// Outcome is the terminal state of one CompletionRequest.
type Outcome string

const (
	OutcomeSuggestion Outcome = "suggestion"
	OutcomeCanceled   Outcome = "canceled"
	OutcomeTimedOut   Outcome = "timed_out"
	OutcomeFailed     Outcome = "failed"
)

// FailureKind classifies failed generations.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureNetwork            FailureKind = "network"
	FailureAuth               FailureKind = "auth"
	FailureRateLimited        FailureKind = "rate_limited"
	FailureTimeout            FailureKind = "timeout"
	FailureCanceled           FailureKind = "canceled"
	FailureWorkerCrashed      FailureKind = "worker_crashed"
	FailureAcceleratorLoad    FailureKind = "accelerator_load"
	FailureBackendUnavailable FailureKind = "backend_unavailable"
	FailureBadResponse        FailureKind = "bad_response"
)

// Retryable reports whether a failure of this kind may be retried.
func (k FailureKind) Retryable() bool { return k == FailureNetwork }

// CompletionResult is what a worker hands back to the control loop.
type CompletionResult struct {
	DocumentID  string        `json:"document_id"`
	RequestID   uint64        `json:"request_id"`
	Outcome     Outcome       `json:"outcome"`
	Text        string        `json:"text,omitempty"`
	Failure     FailureKind   `json:"failure,omitempty"`
	Err         string        `json:"error,omitempty"`
	BackendUsed string        `json:"backend_used,omitempty"`
	Latency     time.Duration `json:"latency"`
}

// GhostTextUpdate is emitted whenever a document's SuggestionState changes.
// Empty Text means the ghost text must be removed.
type GhostTextUpdate struct {
	DocumentID          string `json:"document_id"`
	RequestID           uint64 `json:"request_id"`
	Text                string `json:"text"`
	MatchedPrefixLength int    `json:"matched_prefix_length"`
}

// StatusState is the coarse lifecycle indicator shown by the host.
type StatusState string

const (
	StatusIdle       StatusState = "idle"
	StatusDebouncing StatusState = "debouncing"
	StatusRequesting StatusState = "requesting"
	StatusCanceled   StatusState = "canceled"
	StatusTimedOut   StatusState = "timed_out"
	StatusOffline    StatusState = "offline"
	StatusDegraded   StatusState = "degraded"
	StatusError      StatusState = "error"
)

// StatusEvent is emitted on every lifecycle transition.
type StatusEvent struct {
	DocumentID   string      `json:"document_id,omitempty"`
	RequestID    uint64      `json:"request_id,omitempty"`
	State        StatusState `json:"state"`
	BackendInUse string      `json:"backend_in_use,omitempty"`
	// Reason carries the failure kind or a short machine-readable cause.
	Reason string `json:"reason,omitempty"`
	// RetryAfter is set for rate-limit failures when the provider sent a hint.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Vendor identifies the maker of a local accelerator.
type Vendor string

const (
	VendorNVIDIA  Vendor = "nvidia"
	VendorAMD     Vendor = "amd"
	VendorIntel   Vendor = "intel"
	VendorUnknown Vendor = "unknown"
)

// Device is one entry returned by device enumeration.
type Device struct {
	// Identifier passed to the runtime (e.g. llama.cpp main GPU index).
	// example: 0
	ID string `json:"id" example:"0"`
	// Human-readable device name.
	// example: NVIDIA GeForce RTX 4070
	Name   string `json:"name" example:"NVIDIA GeForce RTX 4070"`
	Vendor Vendor `json:"vendor" example:"nvidia"`
	// CPU marks the host CPU pseudo-device.
	CPU bool `json:"cpu,omitempty"`
}

// BackendKind is the closed set of completion execution paths.
type BackendKind string

const (
	BackendLocalAccelerated BackendKind = "local_accelerated"
	BackendLocalCPU         BackendKind = "local_cpu"
	BackendRemoteHTTP       BackendKind = "remote_http"
)

// Local reports whether the backend runs inference on this machine.
func (k BackendKind) Local() bool { return k != BackendRemoteHTTP }

// Health of a backend descriptor.
type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthDegraded    Health = "degraded"
	HealthUnavailable Health = "unavailable"
)

// BackendDescriptor is a ranked, health-tagged handle to one execution path.
type BackendDescriptor struct {
	// Stable id: "cpu", "gpu:<device id>", or "remote:<provider>".
	// example: gpu:0
	ID       string      `json:"id" example:"gpu:0"`
	Kind     BackendKind `json:"kind" example:"local_accelerated"`
	Device   *Device     `json:"device,omitempty"`
	Provider string      `json:"provider,omitempty" example:"openai"`
	// Lower is better.
	PriorityRank int    `json:"priority_rank" example:"0"`
	Health       Health `json:"health" example:"healthy"`
}

// Name is the short label used in status events and logs.
func (d BackendDescriptor) Name() string {
	switch d.Kind {
	case BackendLocalCPU:
		return "cpu"
	case BackendRemoteHTTP:
		return d.Provider
	}
	if d.Device != nil && d.Device.Name != "" {
		return d.Device.Name
	}
	return d.ID
}

// ProviderKind selects where completions come from.
type ProviderKind string

const (
	ProviderLocal  ProviderKind = "local"
	ProviderOpenAI ProviderKind = "openai"
	ProviderGemini ProviderKind = "gemini"
)

// ProviderConfig is the argument of set_provider.
type ProviderConfig struct {
	Provider ProviderKind `json:"provider" example:"openai"`
	// Remote providers only.
	BaseURL string `json:"base_url,omitempty" example:"https://api.openai.com/v1"`
	Model   string `json:"model,omitempty" example:"gpt-3.5-turbo-instruct"`
	// Opaque handle resolved by the host secret store, e.g. "env:OPENAI_API_KEY".
	Credential string `json:"credential,omitempty" example:"env:OPENAI_API_KEY"`
	// Local provider only: pin a device id, or force CPU.
	Device  string `json:"device,omitempty" example:"0"`
	CPUOnly bool   `json:"cpu_only,omitempty"`
}
