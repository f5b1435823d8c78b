package manager

import (
	"context"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"ghostd/internal/coordinator"
	"ghostd/internal/document"
	"ghostd/internal/registry"
	"ghostd/pkg/types"
)

// Completer is the part of *coordinator.Coordinator the manager drives.
type Completer interface {
	SubmitEdit(ev types.EditEvent)
	DismissSuggestion(docID string)
	TriggerManualCompletion(docID string)
	CloseDocument(docID string)
	SetProvider(pc types.ProviderConfig) error
	AcceptSuggestion(ctx context.Context, docID string) (string, uint64, bool, error)
	Status(ctx context.Context) (types.StatusResponse, error)
	Backends() types.BackendsResponse
	Ready() bool
}

var _ Completer = (*coordinator.Coordinator)(nil)

type Manager struct {
	docs      *document.Store
	coord     Completer
	events    *coordinator.Broadcaster
	modelsDir string
	log       zerolog.Logger
}

// New returns a Manager over docs and coord. events feeds Subscribe and may
// be nil, in which case subscribers receive nothing.
func New(docs *document.Store, coord Completer, events *coordinator.Broadcaster, modelsDir string, log zerolog.Logger) *Manager {
	if events == nil {
		events = coordinator.NewBroadcaster()
	}
	return &Manager{docs: docs, coord: coord, events: events, modelsDir: modelsDir, log: log}
}

// OpenDocument opens id or replaces its text. Replacing drops any visible
// suggestion since it was computed for the old text.
func (m *Manager) OpenDocument(id, text string, cursor int) error {
	if id == "" {
		return invalidRequestError{msg: "document id is required"}
	}
	if n := utf8.RuneCountInString(text); cursor < 0 || cursor > n {
		return invalidRequestError{msg: "cursor out of range"}
	}
	reopen := m.docs.Has(id)
	m.docs.Open(id, text, cursor)
	if reopen {
		m.coord.DismissSuggestion(id)
	}
	m.log.Debug().Str("document", id).Bool("reopen", reopen).Int("chars", utf8.RuneCountInString(text)).Msg("document opened")
	return nil
}

func (m *Manager) CloseDocument(id string) error {
	if !m.docs.Close(id) {
		return ErrDocumentNotFound(id)
	}
	m.coord.CloseDocument(id)
	return nil
}

// SubmitEdit mirrors ev and forwards it to the coordinator.
func (m *Manager) SubmitEdit(ev types.EditEvent) error {
	if !m.docs.Has(ev.DocumentID) {
		return ErrDocumentNotFound(ev.DocumentID)
	}
	if err := m.docs.Apply(ev); err != nil {
		m.log.Warn().Err(err).Str("document", ev.DocumentID).Msg("edit rejected; host must re-open the document")
		return desyncError{err: err}
	}
	m.coord.SubmitEdit(ev)
	return nil
}

func (m *Manager) AcceptSuggestion(ctx context.Context, id string) (types.AcceptResponse, error) {
	if !m.docs.Has(id) {
		return types.AcceptResponse{}, ErrDocumentNotFound(id)
	}
	text, reqID, ok, err := m.coord.AcceptSuggestion(ctx, id)
	if err != nil {
		return types.AcceptResponse{}, err
	}
	if !ok {
		return types.AcceptResponse{}, noSuggestionError{id: id}
	}
	return types.AcceptResponse{Text: text, RequestID: reqID}, nil
}

func (m *Manager) DismissSuggestion(id string) error {
	if !m.docs.Has(id) {
		return ErrDocumentNotFound(id)
	}
	m.coord.DismissSuggestion(id)
	return nil
}

func (m *Manager) TriggerCompletion(id string) error {
	if !m.docs.Has(id) {
		return ErrDocumentNotFound(id)
	}
	m.coord.TriggerManualCompletion(id)
	return nil
}

func (m *Manager) SetProvider(pc types.ProviderConfig) error {
	if err := m.coord.SetProvider(pc); err != nil {
		return invalidRequestError{msg: err.Error()}
	}
	return nil
}

func (m *Manager) Backends() types.BackendsResponse { return m.coord.Backends() }

func (m *Manager) Status(ctx context.Context) (types.StatusResponse, error) {
	return m.coord.Status(ctx)
}

// Subscribe registers an event stream; call the returned func to release it.
func (m *Manager) Subscribe(buffer int) (<-chan types.Event, func()) {
	_, ch, cancel := m.events.Subscribe(buffer)
	return ch, cancel
}

// ListModels scans the models directory on every call so freshly pulled
// files show up without a restart.
func (m *Manager) ListModels() []types.Model {
	models, err := registry.LoadDir(m.modelsDir)
	if err != nil {
		m.log.Warn().Err(err).Str("dir", m.modelsDir).Msg("listing models failed")
		return []types.Model{}
	}
	return models
}

func (m *Manager) Ready() bool { return m.coord.Ready() }
