package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lavishq/lavis/internal/agent/ai"
	"github.com/lavishq/lavis/internal/agent/turn"
	"github.com/lavishq/lavis/internal/agent/vision"
	"github.com/lavishq/lavis/internal/store"
)

// summarizerModel answers every Generate call with a fixed summary.
type summarizerModel struct {
	out   string
	calls int
}

func (m *summarizerModel) Name() string { return "summarizer-fake" }

func (m *summarizerModel) Generate(ctx context.Context, req *ai.GenerateRequest) (*ai.GenerateResponse, error) {
	m.calls++
	return &ai.GenerateResponse{Text: m.out}, nil
}

func newTestManager(t *testing.T, model ai.ChatModel, threshold int) *Manager {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cold, err := vision.NewColdStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	return NewManager(ManagerConfig{
		Store:            st,
		Window:           NewWindow(20, 10),
		Compactor:        vision.NewCompactor(st, []string{"❌"}),
		Cold:             cold,
		Model:            model,
		SummaryThreshold: threshold,
	})
}

func TestSaveMessagePersists(t *testing.T) {
	m := newTestManager(t, nil, 0)

	e := Entry{Message: ai.Message{Role: ai.RoleUser, Content: "open the settings app"}}
	if err := m.SaveMessage(e, -1); err != nil {
		t.Fatal(err)
	}

	if m.Window().Len() != 1 {
		t.Error("message should land in the window")
	}

	key, err := m.CurrentSessionKey()
	if err != nil {
		t.Fatal(err)
	}
	rows, err := m.store.GetMessages(key, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Role != "user" || rows[0].Content != "open the settings app" {
		t.Errorf("row = %+v", rows[0])
	}

	sess, err := m.store.GetSession(key)
	if err != nil {
		t.Fatal(err)
	}
	if sess.MessageCount != 1 {
		t.Errorf("message count = %d, want 1", sess.MessageCount)
	}
	if sess.TokenEstimate != EstimateTokens("open the settings app") {
		t.Errorf("token estimate = %d", sess.TokenEstimate)
	}
}

func TestSaveMessageWithImageBindsID(t *testing.T) {
	m := newTestManager(t, nil, 0)

	e := Entry{
		Message: ai.Message{Role: store.RoleObservation, Content: "screenshot", Images: [][]byte{[]byte("png")}},
		TurnID:  "turn-1",
	}
	if err := m.SaveMessageWithImage(e, 0, "img-1"); err != nil {
		t.Fatal(err)
	}

	key, _ := m.CurrentSessionKey()
	rows, err := m.store.GetMessages(key, 0)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].ImageID != "img-1" || rows[0].TurnID != "turn-1" {
		t.Errorf("row = %+v", rows[0])
	}
	// An inline screenshot dominates the estimate.
	if rows[0].TokenEstimate < imageTokenCost {
		t.Errorf("estimate = %d, want >= %d", rows[0].TokenEstimate, imageTokenCost)
	}
}

func TestCurrentSessionKeyStable(t *testing.T) {
	m := newTestManager(t, nil, 0)

	k1, err := m.CurrentSessionKey()
	if err != nil {
		t.Fatal(err)
	}
	k2, err := m.CurrentSessionKey()
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Errorf("keys differ: %s vs %s", k1, k2)
	}
}

func TestResetSessionStartsFresh(t *testing.T) {
	m := newTestManager(t, nil, 0)

	if err := m.SaveMessage(Entry{Message: ai.Message{Role: ai.RoleUser, Content: "hello"}}, -1); err != nil {
		t.Fatal(err)
	}
	oldKey, _ := m.CurrentSessionKey()

	newKey, err := m.ResetSession()
	if err != nil {
		t.Fatal(err)
	}
	if newKey == oldKey {
		t.Error("reset should allocate a new session key")
	}
	if m.Window().Len() != 0 {
		t.Error("reset should clear the window")
	}

	// The previous session's rows survive.
	rows, err := m.store.GetMessages(oldKey, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("old session rows = %d, want 1", len(rows))
	}
}

func TestOnTurnEndCompactsTurn(t *testing.T) {
	m := newTestManager(t, nil, 0)

	for i := 0; i < 4; i++ {
		e := Entry{
			Message: ai.Message{
				Role:    store.RoleObservation,
				Content: "screenshot captured",
				Images:  [][]byte{[]byte("png")},
			},
			ImageID: fmt.Sprintf("img-%d", i),
			TurnID:  "turn-1",
		}
		if err := m.SaveMessage(e, i); err != nil {
			t.Fatal(err)
		}
	}

	m.OnTurnEnd(turn.Summary{ID: "turn-1"})

	// Store rows: anchors stay, middles flagged.
	msgs, err := m.store.GetTurnMessages("turn-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range msgs {
		middle := msg.ImageID == "img-1" || msg.ImageID == "img-2"
		if msg.IsCompressed != middle {
			t.Errorf("%s compressed = %v, want %v", msg.ImageID, msg.IsCompressed, middle)
		}
	}

	// Window entries mirror the store: archived payloads give way to
	// placeholders.
	for _, e := range m.Window().Entries() {
		middle := e.ImageID == "img-1" || e.ImageID == "img-2"
		if middle {
			if len(e.Images) != 0 {
				t.Errorf("%s payload should be evicted from the window", e.ImageID)
			}
			if !strings.Contains(e.Content, Placeholder(e.ImageID)) {
				t.Errorf("%s content missing placeholder", e.ImageID)
			}
		} else if len(e.Images) == 0 {
			t.Errorf("%s anchor payload should stay inline", e.ImageID)
		}
	}
}

func TestOnTurnEndEmptyID(t *testing.T) {
	m := newTestManager(t, nil, 0)
	m.OnTurnEnd(turn.Summary{})
}

func TestManageMemoryCompresses(t *testing.T) {
	model := &summarizerModel{out: "User browsed several settings panes."}
	m := newTestManager(t, model, 10)

	for i := 0; i < 6; i++ {
		e := Entry{Message: ai.Message{Role: ai.RoleUser, Content: fmt.Sprintf("message number %d with some content", i)}}
		if err := m.SaveMessage(e, -1); err != nil {
			t.Fatal(err)
		}
	}

	cleaned, compressed, err := m.ManageMemory(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cleaned != 0 {
		t.Errorf("cleaned = %d, want 0", cleaned)
	}
	if !compressed {
		t.Fatal("compression should run above the threshold")
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1", model.calls)
	}

	msgs := m.Window().Messages()
	if len(msgs) != summaryKeepRecent+1 {
		t.Fatalf("window = %d messages, want %d", len(msgs), summaryKeepRecent+1)
	}
	if msgs[0].Role != ai.RoleSystem || !strings.Contains(msgs[0].Content, model.out) {
		t.Errorf("head = %+v, want the summary", msgs[0])
	}

	// The session estimate is rebuilt from the surviving window.
	key, _ := m.CurrentSessionKey()
	sess, err := m.store.GetSession(key)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, e := range m.Window().Entries() {
		total += messageEstimate(e)
	}
	if sess.TokenEstimate != total {
		t.Errorf("session estimate = %d, want %d", sess.TokenEstimate, total)
	}
}

func TestManageMemoryBelowThreshold(t *testing.T) {
	model := &summarizerModel{out: "unused"}
	m := newTestManager(t, model, 0) // default 100k threshold

	if err := m.SaveMessage(Entry{Message: ai.Message{Role: ai.RoleUser, Content: "short"}}, -1); err != nil {
		t.Fatal(err)
	}
	_, compressed, err := m.ManageMemory(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if compressed || model.calls != 0 {
		t.Error("compression must not run below the threshold")
	}
}

func TestManageMemoryWithoutModel(t *testing.T) {
	m := newTestManager(t, nil, 1)
	if err := m.SaveMessage(Entry{Message: ai.Message{Role: ai.RoleUser, Content: "plenty of text here"}}, -1); err != nil {
		t.Fatal(err)
	}
	_, compressed, err := m.ManageMemory(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if compressed {
		t.Error("no model, no compression")
	}
}
