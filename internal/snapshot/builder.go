// Package snapshot turns the current state of a document into an immutable,
// bounded ContextSnapshot with a per-document monotonic sequence number.
package snapshot

import (
	"ghostd/internal/document"
	"ghostd/pkg/types"
)

// Builder is owned by the coordinator's control loop and is not safe for
// concurrent use.
type Builder struct {
	acc       document.Accessor
	maxPrefix int
	maxSuffix int
	seq       map[string]uint64
}

// NewBuilder returns a Builder reading windows of at most maxPrefix/maxSuffix
// characters from acc.
func NewBuilder(acc document.Accessor, maxPrefix, maxSuffix int) *Builder {
	return &Builder{acc: acc, maxPrefix: maxPrefix, maxSuffix: maxSuffix, seq: make(map[string]uint64)}
}

// Build captures a new snapshot and advances the document's sequence. ok is
// false when the accessor does not know the document; the sequence is not
// consumed in that case.
func (b *Builder) Build(docID string, manual bool) (types.ContextSnapshot, bool) {
	w, ok := b.acc.Window(docID, b.maxPrefix, b.maxSuffix)
	if !ok {
		return types.ContextSnapshot{}, false
	}
	b.seq[docID]++
	return types.ContextSnapshot{
		DocumentID:   docID,
		Sequence:     b.seq[docID],
		Prefix:       w.Prefix,
		Suffix:       w.Suffix,
		CursorOffset: w.Cursor,
		Manual:       manual,
		Trimmed:      w.Trimmed,
	}, true
}

// Next reserves a sequence number without reading the document. Used when a
// request is reissued for an existing snapshot on a different backend.
func (b *Builder) Next(docID string) uint64 {
	b.seq[docID]++
	return b.seq[docID]
}

// Last returns the most recently issued sequence for docID.
func (b *Builder) Last(docID string) uint64 { return b.seq[docID] }
