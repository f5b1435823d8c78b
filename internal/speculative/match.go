// Package speculative decides whether newly typed text continues the
// suggestion currently shown, so the coordinator can shrink the ghost text
// instead of issuing a new request.
package speculative

import (
	"unicode/utf8"

	"ghostd/pkg/types"
)

// Decision is the result of matching one edit against a suggestion.
type Decision int

const (
	// Diverged means the suggestion no longer applies and must be cleared.
	Diverged Decision = iota
	// Advanced means the edit consumed the next characters of the suggestion.
	Advanced
	// Unchanged means the edit did not touch text or cursor position.
	Unchanged
)

func (d Decision) String() string {
	switch d {
	case Advanced:
		return "advanced"
	case Unchanged:
		return "unchanged"
	}
	return "diverged"
}

// State is a document's SuggestionState. It is owned by the coordinator's
// control loop and never shared with workers.
type State struct {
	Anchor types.ContextSnapshot
	Origin uint64
	text   []rune
	// Matched counts suggestion characters the user has already typed.
	Matched int
}

// New anchors suggestion text at the snapshot it was generated for.
func New(anchor types.ContextSnapshot, text string, origin uint64) *State {
	return &State{Anchor: anchor, Origin: origin, text: []rune(text)}
}

// Text is the full suggestion.
func (s *State) Text() string { return string(s.text) }

// Remaining is the ghost text still to be shown.
func (s *State) Remaining() string { return string(s.text[s.Matched:]) }

// Exhausted reports whether every character has been typed.
func (s *State) Exhausted() bool { return s.Matched >= len(s.text) }

// Cursor is where the next matching character must be inserted.
func (s *State) Cursor() int { return s.Anchor.CursorOffset + s.Matched }

// Update returns the GhostTextUpdate describing the current state.
func (s *State) Update() types.GhostTextUpdate {
	return types.GhostTextUpdate{
		DocumentID:          s.Anchor.DocumentID,
		RequestID:           s.Origin,
		Text:                s.Remaining(),
		MatchedPrefixLength: s.Matched,
	}
}

// Advance matches ev against the suggestion. Only a plain insertion at the
// expected cursor whose text equals the next unconsumed characters advances;
// deletions, pastes, replacements, jumps and mismatches diverge. It never
// allocates and never blocks.
func (s *State) Advance(ev types.EditEvent) Decision {
	cur := s.Cursor()
	switch ev.Kind {
	case types.EditCursor, types.EditSelection:
		if ev.CursorOffset == cur {
			return Unchanged
		}
		return Diverged
	case types.EditInsert:
	default:
		return Diverged
	}
	n := utf8.RuneCountInString(ev.TextDelta)
	if n == 0 || ev.RemovedLen != 0 || ev.Offset != cur || ev.CursorOffset != cur+n {
		return Diverged
	}
	if n > len(s.text)-s.Matched {
		return Diverged
	}
	i := s.Matched
	for _, r := range ev.TextDelta {
		if s.text[i] != r {
			return Diverged
		}
		i++
	}
	s.Matched = i
	return Advanced
}
