package vision

import (
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lavishq/lavis/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.CreateSession("agent"); err != nil {
		t.Fatal(err)
	}
	return st
}

// seedTurn appends one observation message per image ID, in order.
func seedTurn(t *testing.T, st *store.Store, turnID string, contents map[string]string, imageIDs ...string) {
	t.Helper()
	for i, id := range imageIDs {
		content := "screenshot captured"
		if c, ok := contents[id]; ok {
			content = c
		}
		_, err := st.AppendMessage(&store.Message{
			SessionKey:   "agent",
			Role:         "observation",
			Content:      content,
			ImageID:      id,
			TurnID:       turnID,
			TurnPosition: i,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func compressedByID(t *testing.T, st *store.Store, turnID string) map[string]bool {
	t.Helper()
	msgs, err := st.GetTurnMessages(turnID)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]bool)
	for _, m := range msgs {
		if m.ImageID != "" {
			out[m.ImageID] = m.IsCompressed
		}
	}
	return out
}

func TestCompactTurnKeepsAnchors(t *testing.T) {
	st := newTestStore(t)
	seedTurn(t, st, "turn-1", nil, "img-0", "img-1", "img-2", "img-3", "img-4")

	c := NewCompactor(st, []string{"❌"})
	archived, err := c.CompactTurn("turn-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"img-1", "img-2", "img-3"}; !reflect.DeepEqual(archived, want) {
		t.Errorf("archived = %v, want %v", archived, want)
	}

	flags := compressedByID(t, st, "turn-1")
	if flags["img-0"] || flags["img-4"] {
		t.Error("first and last images must stay inline")
	}
	for _, id := range []string{"img-1", "img-2", "img-3"} {
		if !flags[id] {
			t.Errorf("%s should be compressed", id)
		}
	}
}

func TestCompactTurnKeepsExceptionFrames(t *testing.T) {
	st := newTestStore(t)
	contents := map[string]string{
		"img-2": "❌ click missed the Submit button",
	}
	seedTurn(t, st, "turn-2", contents, "img-0", "img-1", "img-2", "img-3", "img-4")

	c := NewCompactor(st, []string{"❌", "(?i)\\berror\\b"})
	archived, err := c.CompactTurn("turn-2")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"img-1", "img-3"}; !reflect.DeepEqual(archived, want) {
		t.Errorf("archived = %v, want %v", archived, want)
	}

	flags := compressedByID(t, st, "turn-2")
	if flags["img-2"] {
		t.Error("exception frame should stay inline")
	}
	if !flags["img-1"] || !flags["img-3"] {
		t.Error("unremarkable middles should be compressed")
	}
}

func TestCompactTurnSmallTurns(t *testing.T) {
	st := newTestStore(t)
	c := NewCompactor(st, nil)

	for n := 0; n <= 2; n++ {
		turnID := fmt.Sprintf("small-%d", n)
		var ids []string
		for i := 0; i < n; i++ {
			ids = append(ids, fmt.Sprintf("s%d-img-%d", n, i))
		}
		seedTurn(t, st, turnID, nil, ids...)

		archived, err := c.CompactTurn(turnID)
		if err != nil {
			t.Fatal(err)
		}
		if len(archived) != 0 {
			t.Errorf("turn with %d images archived %v, want none", n, archived)
		}
	}
}

func TestCompactTurnEmptyID(t *testing.T) {
	c := NewCompactor(newTestStore(t), nil)
	archived, err := c.CompactTurn("")
	if err != nil || len(archived) != 0 {
		t.Errorf("CompactTurn(\"\") = (%v, %v), want (none, nil)", archived, err)
	}
}

func TestCompactTurnIgnoresTextMessages(t *testing.T) {
	st := newTestStore(t)
	// Interleave plain messages with image-bearing ones; only images count.
	rows := []store.Message{
		{SessionKey: "agent", Role: "user", Content: "open the report", TurnID: "turn-3", TurnPosition: 0},
		{SessionKey: "agent", Role: "observation", ImageID: "img-a", TurnID: "turn-3", TurnPosition: 1},
		{SessionKey: "agent", Role: "assistant", Content: "clicking the file", TurnID: "turn-3", TurnPosition: 2},
		{SessionKey: "agent", Role: "observation", ImageID: "img-b", TurnID: "turn-3", TurnPosition: 3},
		{SessionKey: "agent", Role: "observation", ImageID: "img-c", TurnID: "turn-3", TurnPosition: 4},
	}
	for i := range rows {
		if _, err := st.AppendMessage(&rows[i]); err != nil {
			t.Fatal(err)
		}
	}

	c := NewCompactor(st, nil)
	archived, err := c.CompactTurn("turn-3")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"img-b"}; !reflect.DeepEqual(archived, want) {
		t.Errorf("archived = %v, want %v", archived, want)
	}
	flags := compressedByID(t, st, "turn-3")
	if flags["img-a"] || flags["img-c"] || !flags["img-b"] {
		t.Errorf("flags = %v, want only img-b compressed", flags)
	}
}

func TestNewCompactorSkipsInvalidPatterns(t *testing.T) {
	c := NewCompactor(newTestStore(t), []string{"[unclosed", "❌"})
	if len(c.patterns) != 1 {
		t.Errorf("patterns = %d, want 1 (invalid one dropped)", len(c.patterns))
	}
	if !c.isException("❌ failed") {
		t.Error("valid pattern should still match")
	}
}
