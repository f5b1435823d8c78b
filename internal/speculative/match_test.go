package speculative

import (
	"testing"

	"ghostd/pkg/types"
)

func anchor(cursor int) types.ContextSnapshot {
	return types.ContextSnapshot{DocumentID: "d", Sequence: 7, Prefix: "This is ", CursorOffset: cursor}
}

func insert(at int, s string) types.EditEvent {
	return types.EditEvent{DocumentID: "d", Kind: types.EditInsert, Offset: at, TextDelta: s, CursorOffset: at + len([]rune(s))}
}

// Typing "n","o","t" against "not a bug" shrinks the ghost text; "x" where a
// space was expected diverges.
func TestTypingThroughSuggestion(t *testing.T) {
	s := New(anchor(8), "not a bug", 7)
	want := []string{"ot a bug", "t a bug", " a bug"}
	for i, ch := range []string{"n", "o", "t"} {
		if d := s.Advance(insert(8+i, ch)); d != Advanced {
			t.Fatalf("char %q: decision=%v", ch, d)
		}
		u := s.Update()
		if u.Text != want[i] || u.MatchedPrefixLength != i+1 || u.RequestID != 7 {
			t.Fatalf("char %q: update=%+v", ch, u)
		}
	}
	before := s.Matched
	if d := s.Advance(insert(11, "x")); d != Diverged {
		t.Fatalf("expected divergence, got %v", d)
	}
	if s.Matched != before {
		t.Fatalf("divergence must not advance the match")
	}
}

func TestMatchedPrefixIsMonotonic(t *testing.T) {
	s := New(anchor(0), "abcdef", 1)
	last := 0
	for i, ch := range "abcdef" {
		if d := s.Advance(insert(i, string(ch))); d != Advanced {
			t.Fatalf("step %d: %v", i, d)
		}
		if s.Matched <= last {
			t.Fatalf("matched did not increase: %d <= %d", s.Matched, last)
		}
		last = s.Matched
	}
	if !s.Exhausted() || s.Remaining() != "" {
		t.Fatalf("expected exhausted suggestion")
	}
}

func TestNonTypingEditsDiverge(t *testing.T) {
	cases := []struct {
		name string
		ev   types.EditEvent
	}{
		{"deletion", types.EditEvent{Kind: types.EditDelete, Offset: 7, RemovedLen: 1, CursorOffset: 7}},
		{"paste of matching text", types.EditEvent{Kind: types.EditPaste, Offset: 8, TextDelta: "not", CursorOffset: 11}},
		{"selection replace", types.EditEvent{Kind: types.EditReplace, Offset: 8, RemovedLen: 2, TextDelta: "n", CursorOffset: 9}},
		{"cursor jump", types.EditEvent{Kind: types.EditCursor, CursorOffset: 2}},
		{"insert elsewhere", insert(3, "n")},
		{"insert with removal", types.EditEvent{Kind: types.EditInsert, Offset: 8, RemovedLen: 1, TextDelta: "n", CursorOffset: 9}},
		{"longer than suggestion", insert(8, "not a bug!")},
		{"empty insert", insert(8, "")},
	}
	for _, tc := range cases {
		s := New(anchor(8), "not a bug", 1)
		if d := s.Advance(tc.ev); d != Diverged {
			t.Fatalf("%s: expected divergence, got %v", tc.name, d)
		}
	}
}

func TestCursorNotificationAtExpectedPositionIsIgnored(t *testing.T) {
	s := New(anchor(8), "not", 1)
	s.Advance(insert(8, "n"))
	if d := s.Advance(types.EditEvent{Kind: types.EditCursor, CursorOffset: 9}); d != Unchanged {
		t.Fatalf("expected unchanged, got %v", d)
	}
	if s.Remaining() != "ot" {
		t.Fatalf("remaining=%q", s.Remaining())
	}
}

func TestMultiCharacterAndUnicodeInsert(t *testing.T) {
	s := New(anchor(8), "héllo wörld", 1)
	if d := s.Advance(insert(8, "hél")); d != Advanced {
		t.Fatalf("expected advance, got %v", d)
	}
	if s.Matched != 3 || s.Remaining() != "lo wörld" || s.Cursor() != 11 {
		t.Fatalf("matched=%d remaining=%q cursor=%d", s.Matched, s.Remaining(), s.Cursor())
	}
}
