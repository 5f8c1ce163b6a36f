package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/lavishq/lavis/internal/agent/ai"
)

func userEntry(content string) Entry {
	return Entry{Message: ai.Message{Role: ai.RoleUser, Content: content}}
}

func imageEntry(imageID, turnID string) Entry {
	return Entry{
		Message: ai.Message{Role: ai.RoleTool, Content: "screenshot", Images: [][]byte{[]byte("png")}},
		ImageID: imageID,
		TurnID:  turnID,
	}
}

func toolCallEntry(callID string) Entry {
	return Entry{Message: ai.Message{
		Role:      ai.RoleAssistant,
		ToolCalls: []ai.ToolCall{{ID: callID, Name: "click", Args: json.RawMessage(`{}`)}},
	}}
}

func toolResultEntry(callID string) Entry {
	return Entry{Message: ai.Message{
		Role:        ai.RoleTool,
		ToolResults: []ai.ToolResult{{ToolCallID: callID, Content: "done"}},
	}}
}

func TestWindowKeepsOrder(t *testing.T) {
	w := NewWindow(10, 10)
	for i := 0; i < 3; i++ {
		w.Append(userEntry(fmt.Sprintf("msg-%d", i)))
	}
	msgs := w.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if want := fmt.Sprintf("msg-%d", i); m.Content != want {
			t.Errorf("msgs[%d] = %q, want %q", i, m.Content, want)
		}
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(4, 10)
	for i := 0; i < 6; i++ {
		w.Append(userEntry(fmt.Sprintf("msg-%d", i)))
	}
	msgs := w.Messages()
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	if msgs[0].Content != "msg-2" {
		t.Errorf("oldest surviving = %q, want msg-2", msgs[0].Content)
	}
}

func TestWindowKeepsToolPairsTogether(t *testing.T) {
	w := NewWindow(3, 10)
	w.Append(userEntry("open the browser"))
	w.Append(toolCallEntry("call-1"))
	w.Append(toolResultEntry("call-1"))
	w.Append(userEntry("now what"))

	// The lone user message is evicted first; the call/result pair
	// survives intact.
	msgs := w.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if len(msgs[0].ToolCalls) == 0 {
		t.Fatal("tool call should be the oldest survivor")
	}

	// The next overflow drops the call and its result together.
	w.Append(userEntry("and then"))
	msgs = w.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	for i, m := range msgs {
		if len(m.ToolResults) > 0 {
			t.Errorf("msgs[%d] is an orphaned tool result", i)
		}
	}
}

func TestWindowToleratesOversizedGroup(t *testing.T) {
	w := NewWindow(2, 10)
	w.Append(toolCallEntry("call-1"))
	w.Append(toolResultEntry("call-1"))
	w.Append(toolResultEntry("call-1"))

	// The group spans the whole window; trimming would orphan results,
	// so the bound is allowed to slip.
	if got := w.Len(); got != 3 {
		t.Errorf("len = %d, want 3 (bound violated rather than orphaning)", got)
	}
}

func TestWindowImageBudget(t *testing.T) {
	w := NewWindow(20, 2)
	for i := 0; i < 4; i++ {
		w.Append(imageEntry(fmt.Sprintf("img-%d", i), "turn-1"))
	}

	entries := w.Entries()
	if len(entries) != 4 {
		t.Fatalf("len = %d, want 4", len(entries))
	}
	// First and last image of the turn stay inline as anchors.
	if len(entries[0].Images) == 0 || len(entries[3].Images) == 0 {
		t.Error("turn anchors must keep their payload")
	}
	for _, i := range []int{1, 2} {
		e := entries[i]
		if len(e.Images) != 0 {
			t.Errorf("entries[%d] should have its payload evicted", i)
		}
		if !strings.Contains(e.Content, Placeholder(e.ImageID)) {
			t.Errorf("entries[%d] content %q missing placeholder", i, e.Content)
		}
	}
}

func TestWindowImageBudgetAcrossTurns(t *testing.T) {
	w := NewWindow(20, 2)
	w.Append(imageEntry("a-0", "turn-a"))
	w.Append(imageEntry("a-1", "turn-a"))
	w.Append(imageEntry("b-0", "turn-b"))
	w.Append(imageEntry("b-1", "turn-b"))

	// Every image is an anchor of its turn, so the budget slips
	// instead of evicting.
	for i, e := range w.Entries() {
		if len(e.Images) == 0 {
			t.Errorf("entries[%d] anchor payload was evicted", i)
		}
	}
}

func TestEvictImagePayload(t *testing.T) {
	w := NewWindow(20, 10)
	w.Append(imageEntry("img-x", "turn-1"))
	w.Append(userEntry("unrelated"))

	w.EvictImagePayload("img-x")

	entries := w.Entries()
	if len(entries[0].Images) != 0 {
		t.Error("payload should be gone")
	}
	if want := Placeholder("img-x"); !strings.Contains(entries[0].Content, want) {
		t.Errorf("content %q missing %q", entries[0].Content, want)
	}
	if entries[1].Content != "unrelated" {
		t.Error("other entries must be untouched")
	}
}

func TestReplaceHead(t *testing.T) {
	w := NewWindow(20, 10)
	w.Append(userEntry("one"))
	w.Append(toolCallEntry("call-1"))
	w.Append(toolResultEntry("call-1"))
	w.Append(userEntry("four"))
	w.Append(userEntry("five"))

	summary := Entry{Message: ai.Message{Role: ai.RoleSystem, Content: "summary"}}
	// Cutting at 2 would sever call-1 from its result; the cut widens.
	replaced := w.ReplaceHead(2, summary)
	if len(replaced) != 3 {
		t.Fatalf("replaced %d entries, want 3", len(replaced))
	}

	msgs := w.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].Role != ai.RoleSystem || msgs[0].Content != "summary" {
		t.Errorf("head = %+v, want the summary", msgs[0])
	}
	if msgs[1].Content != "four" || msgs[2].Content != "five" {
		t.Error("recent messages should survive compression")
	}
}

func TestWindowClear(t *testing.T) {
	w := NewWindow(20, 10)
	w.Append(userEntry("x"))
	w.Clear()
	if w.Len() != 0 {
		t.Error("Clear should empty the window")
	}
}

func TestPlaceholderFormat(t *testing.T) {
	if got := Placeholder("abc-123"); got != "[Visual_Placeholder: abc-123]" {
		t.Errorf("Placeholder = %q", got)
	}
}
