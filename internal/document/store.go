// Package document keeps an in-memory mirror of host documents so the
// coordinator can read bounded context windows around the cursor without
// calling back into the host.
package document

import (
	"fmt"
	"sync"

	"ghostd/pkg/types"
)

// Accessor is the read-only view the snapshot builder needs. Hosts embedding
// the coordinator in-process can implement it directly over their buffer.
type Accessor interface {
	// Window returns up to maxPrefix characters before the cursor and up to
	// maxSuffix characters after it, plus the cursor offset. ok is false when
	// the document is unknown.
	Window(docID string, maxPrefix, maxSuffix int) (w Window, ok bool)
}

// Window is a bounded slice of a document around its cursor.
type Window struct {
	Prefix  string
	Suffix  string
	Cursor  int
	Trimmed bool
}

type doc struct {
	text   []rune
	cursor int
}

// Store is a concurrency-safe set of document mirrors.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*doc
}

func NewStore() *Store { return &Store{docs: make(map[string]*doc)} }

// Open creates or replaces a document.
func (s *Store) Open(id, text string, cursor int) {
	r := []rune(text)
	s.mu.Lock()
	s.docs[id] = &doc{text: r, cursor: clamp(cursor, 0, len(r))}
	s.mu.Unlock()
}

// Close forgets a document. It reports whether the document existed.
func (s *Store) Close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[id]
	delete(s.docs, id)
	return ok
}

// Has reports whether id is open.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[id]
	return ok
}

// Text returns the full text and cursor of a document.
func (s *Store) Text(id string) (string, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return "", 0, false
	}
	return string(d.text), d.cursor, true
}

// Apply mirrors one edit. Offsets outside the document are rejected so a
// desynchronized host is noticed instead of silently corrupting the mirror.
func (s *Store) Apply(ev types.EditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[ev.DocumentID]
	if !ok {
		return fmt.Errorf("document %q is not open", ev.DocumentID)
	}
	if ev.Kind.ChangesText() {
		if ev.Offset < 0 || ev.RemovedLen < 0 || ev.Offset+ev.RemovedLen > len(d.text) {
			return fmt.Errorf("edit [%d,+%d) out of range for document of %d chars", ev.Offset, ev.RemovedLen, len(d.text))
		}
		ins := []rune(ev.TextDelta)
		out := make([]rune, 0, len(d.text)-ev.RemovedLen+len(ins))
		out = append(out, d.text[:ev.Offset]...)
		out = append(out, ins...)
		out = append(out, d.text[ev.Offset+ev.RemovedLen:]...)
		d.text = out
	}
	d.cursor = clamp(ev.CursorOffset, 0, len(d.text))
	return nil
}

// Window implements Accessor.
func (s *Store) Window(id string, maxPrefix, maxSuffix int) (Window, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return Window{}, false
	}
	return Cut(d.text, d.cursor, maxPrefix, maxSuffix), true
}

// Cut extracts the bounded window around cursor from text. Non-positive
// limits mean unbounded.
func Cut(text []rune, cursor, maxPrefix, maxSuffix int) Window {
	cursor = clamp(cursor, 0, len(text))
	start, end := 0, len(text)
	trimmed := false
	if maxPrefix > 0 && cursor-maxPrefix > 0 {
		start = cursor - maxPrefix
		trimmed = true
	}
	if maxSuffix > 0 && cursor+maxSuffix < len(text) {
		end = cursor + maxSuffix
		trimmed = true
	}
	return Window{
		Prefix:  string(text[start:cursor]),
		Suffix:  string(text[cursor:end]),
		Cursor:  cursor,
		Trimmed: trimmed,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
