// Package memory keeps the agent's working conversation: a bounded
// in-memory message window for prompt assembly, and a manager that
// mirrors it into the durable store and compacts finished turns.
package memory

import (
	"fmt"
	"sync"

	"github.com/lavishq/lavis/internal/agent/ai"
	"github.com/lavishq/lavis/internal/logging"
)

const (
	// DefaultWindowSize bounds how many messages stay in the window.
	DefaultWindowSize = 20
	// DefaultKeepImages bounds how many messages keep image bytes inline.
	DefaultKeepImages = 10
)

// Placeholder is the text substituted for an evicted image payload.
// Cold storage can resolve the id back to bytes on demand.
func Placeholder(imageID string) string {
	return fmt.Sprintf("[Visual_Placeholder: %s]", imageID)
}

// Entry is one window message plus the metadata the window needs for
// eviction decisions: which turn it belongs to and which stored image
// its inline payload mirrors.
type Entry struct {
	ai.Message
	ImageID string
	TurnID  string
}

// Window is the bounded, time-ordered conversation used to assemble
// prompts. Overflow evicts the oldest messages in units that keep a
// tool call together with its results; inline image payloads beyond
// the keepImages budget are swapped for placeholders, except the
// first and last image of each turn, which stay as anchors.
type Window struct {
	mu         sync.Mutex
	maxLen     int
	keepImages int
	entries    []Entry
}

// NewWindow builds a window. Non-positive limits fall back to the
// defaults.
func NewWindow(maxLen, keepImages int) *Window {
	if maxLen <= 0 {
		maxLen = DefaultWindowSize
	}
	if keepImages <= 0 {
		keepImages = DefaultKeepImages
	}
	return &Window{maxLen: maxLen, keepImages: keepImages}
}

// Append adds a message and re-applies both bounds.
func (w *Window) Append(e Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, e)
	w.evictOverflowLocked()
	w.enforceImageBudgetLocked()
}

// Messages returns a snapshot for prompt assembly. The caller may use
// it without holding any lock; concurrent appends do not mutate it.
func (w *Window) Messages() []ai.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ai.Message, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.Message
	}
	return out
}

// Entries returns a snapshot including window metadata.
func (w *Window) Entries() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Entry(nil), w.entries...)
}

// Len reports the current message count.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Clear drops every message.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = nil
}

// EvictImagePayload drops the inline bytes of every window message
// mirroring imageID, substituting the placeholder. Used after a turn
// is compacted so the window agrees with the store.
func (w *Window) EvictImagePayload(imageID string) {
	if imageID == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.entries {
		if w.entries[i].ImageID == imageID {
			w.evictPayloadAtLocked(i)
		}
	}
}

// EnforceImageBudget re-applies the inline-image bound and returns how
// many payloads were evicted.
func (w *Window) EnforceImageBudget() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enforceImageBudgetLocked()
}

// ReplaceHead swaps the oldest count messages for a single summary
// entry. The cut is widened so a tool call is never severed from its
// results. Returns the entries that were replaced.
func (w *Window) ReplaceHead(count int, summary Entry) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	if count <= 0 || len(w.entries) == 0 {
		return nil
	}
	if count > len(w.entries) {
		count = len(w.entries)
	}
	// Widen past any tool results answering a call inside the cut.
	for count < len(w.entries) && w.entries[count].Role == ai.RoleTool {
		count++
	}
	replaced := append([]Entry(nil), w.entries[:count]...)
	rest := append([]Entry{summary}, w.entries[count:]...)
	w.entries = rest
	return replaced
}

// evictOverflowLocked trims whole eviction groups from the front until
// the window fits. A group is a single message, or an assistant tool
// call plus the tool results that answer it.
func (w *Window) evictOverflowLocked() {
	for len(w.entries) > w.maxLen {
		g := w.frontGroupLenLocked()
		if g >= len(w.entries) {
			logging.Warnf("conversation window exceeds %d messages but trimming further would orphan tool results", w.maxLen)
			return
		}
		w.entries = append(w.entries[:0:0], w.entries[g:]...)
	}
}

func (w *Window) frontGroupLenLocked() int {
	n := 1
	if len(w.entries[0].ToolCalls) > 0 {
		for n < len(w.entries) && w.entries[n].Role == ai.RoleTool {
			n++
		}
	}
	return n
}

// enforceImageBudgetLocked evicts the oldest inline image payloads
// past keepImages, skipping each turn's first and last image.
func (w *Window) enforceImageBudgetLocked() int {
	var inline []int
	for i := range w.entries {
		if len(w.entries[i].Images) > 0 {
			inline = append(inline, i)
		}
	}
	if len(inline) <= w.keepImages {
		return 0
	}

	anchors := make(map[int]bool)
	firstOfTurn := make(map[string]int)
	lastOfTurn := make(map[string]int)
	for _, idx := range inline {
		turn := w.entries[idx].TurnID
		if _, ok := firstOfTurn[turn]; !ok {
			firstOfTurn[turn] = idx
		}
		lastOfTurn[turn] = idx
	}
	for _, idx := range firstOfTurn {
		anchors[idx] = true
	}
	for _, idx := range lastOfTurn {
		anchors[idx] = true
	}

	evicted := 0
	over := len(inline) - w.keepImages
	for _, idx := range inline {
		if over == 0 {
			break
		}
		if anchors[idx] {
			continue
		}
		w.evictPayloadAtLocked(idx)
		evicted++
		over--
	}
	if over > 0 {
		logging.Debugf("inline image budget exceeded by %d, turn anchors retained", over)
	}
	return evicted
}

func (w *Window) evictPayloadAtLocked(i int) {
	e := &w.entries[i]
	if len(e.Images) == 0 {
		return
	}
	e.Images = nil
	ph := Placeholder(e.ImageID)
	if e.Content == "" {
		e.Content = ph
	} else {
		e.Content += "\n" + ph
	}
}
