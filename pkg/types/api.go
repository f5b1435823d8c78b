package types

import "time"

// Model represents a discoverable local model file.
type Model struct {
	// Stable identifier for the model (file name).
	// example: Qwen3-0.6B-Text-FIM.Q4_K_M.gguf
	ID string `json:"id" example:"Qwen3-0.6B-Text-FIM.Q4_K_M.gguf"`
	// Human-friendly name.
	Name string `json:"name"`
	// Absolute path to the model file on disk.
	// example: /home/user/.local/share/ghostd/models/Qwen3-0.6B-Text-FIM.Q4_K_M.gguf
	Path string `json:"path"`
	// Size on disk in bytes.
	SizeBytes int64 `json:"size_bytes,omitempty"`
}

// ModelsResponse wraps the list of models returned by `ghostd models list`.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// OpenDocumentRequest is the body of PUT /v1/documents/{id}.
type OpenDocumentRequest struct {
	// Full document text.
	Text string `json:"text"`
	// Cursor offset in characters.
	// example: 0
	Cursor int `json:"cursor" example:"0"`
}

// AcceptResponse is returned by POST /v1/documents/{id}/accept.
type AcceptResponse struct {
	// Text the host should insert at the cursor.
	// example: not a bug
	Text      string `json:"text" example:"not a bug"`
	RequestID uint64 `json:"request_id"`
}

// DocumentStatus summarizes one tracked document for /v1/status.
type DocumentStatus struct {
	DocumentID string      `json:"document_id"`
	State      StatusState `json:"state"`
	// Sequence of the most recent snapshot taken for this document.
	LastSequence uint64 `json:"last_sequence"`
	// Id of the request currently in flight, zero when none.
	InflightID uint64 `json:"inflight_id,omitempty"`
	// Remaining ghost text, empty when no suggestion is active.
	GhostText string `json:"ghost_text,omitempty"`
}

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	// Coordinator session id; changes on every restart.
	SessionID string `json:"session_id"`
	// Current provider selection.
	Provider ProviderKind `json:"provider"`
	// Backend that would serve the next request.
	BackendInUse string           `json:"backend_in_use,omitempty"`
	Documents    []DocumentStatus `json:"documents"`
	// Worker crashes observed by the watchdog this session.
	WorkerCrashes uint64 `json:"worker_crashes"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

// BackendsResponse is returned by GET /v1/backends.
type BackendsResponse struct {
	Backends []BackendDescriptor `json:"backends"`
	// Id of the pinned descriptor, empty when selection is automatic.
	Pinned string `json:"pinned,omitempty"`
}

// EventType tags one line of the /v1/events stream.
type EventType string

const (
	EventGhostText EventType = "ghost_text"
	EventStatus    EventType = "status"
)

// Event is one coordinator notification delivered to hosts.
type Event struct {
	Type   EventType        `json:"type"`
	At     time.Time        `json:"at"`
	Ghost  *GhostTextUpdate `json:"ghost,omitempty"`
	Status *StatusEvent     `json:"status,omitempty"`
}
