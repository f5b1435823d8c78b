package document

import (
	"testing"

	"ghostd/pkg/types"
)

func TestStoreApplyInsertDeleteReplace(t *testing.T) {
	s := NewStore()
	s.Open("d", "This is ", 8)
	steps := []struct {
		ev   types.EditEvent
		want string
		cur  int
	}{
		{types.EditEvent{Kind: types.EditInsert, Offset: 8, TextDelta: "not", CursorOffset: 11}, "This is not", 11},
		{types.EditEvent{Kind: types.EditDelete, Offset: 10, RemovedLen: 1, CursorOffset: 10}, "This is no", 10},
		{types.EditEvent{Kind: types.EditReplace, Offset: 0, RemovedLen: 4, TextDelta: "That", CursorOffset: 4}, "That is no", 4},
		{types.EditEvent{Kind: types.EditCursor, CursorOffset: 99}, "That is no", 10},
	}
	for i, st := range steps {
		st.ev.DocumentID = "d"
		if err := s.Apply(st.ev); err != nil {
			t.Fatalf("step %d: apply: %v", i, err)
		}
		text, cur, ok := s.Text("d")
		if !ok || text != st.want || cur != st.cur {
			t.Fatalf("step %d: got %q@%d want %q@%d", i, text, cur, st.want, st.cur)
		}
	}
}

func TestStoreApplyRejectsUnknownAndOutOfRange(t *testing.T) {
	s := NewStore()
	if err := s.Apply(types.EditEvent{DocumentID: "missing", Kind: types.EditInsert}); err == nil {
		t.Fatalf("expected error for unknown document")
	}
	s.Open("d", "abc", 0)
	if err := s.Apply(types.EditEvent{DocumentID: "d", Kind: types.EditDelete, Offset: 2, RemovedLen: 5}); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestWindowIsBoundedAndRuneSafe(t *testing.T) {
	s := NewStore()
	s.Open("d", "héllo wörld", 5)
	w, ok := s.Window("d", 3, 2)
	if !ok {
		t.Fatalf("expected window")
	}
	if w.Prefix != "llo" || w.Suffix != " w" || w.Cursor != 5 || !w.Trimmed {
		t.Fatalf("unexpected window: %+v", w)
	}
	w, _ = s.Window("d", 0, 0)
	if w.Prefix != "héllo" || w.Suffix != " wörld" || w.Trimmed {
		t.Fatalf("unbounded window: %+v", w)
	}
	if _, ok := s.Window("nope", 1, 1); ok {
		t.Fatalf("expected unknown document")
	}
}

func TestCloseForgetsDocument(t *testing.T) {
	s := NewStore()
	s.Open("d", "x", 1)
	if !s.Close("d") || s.Has("d") {
		t.Fatalf("expected document to be closed")
	}
	if s.Close("d") {
		t.Fatalf("second close should report false")
	}
}
