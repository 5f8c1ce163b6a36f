package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lavishq/lavis/internal/agent/ai"
	"github.com/lavishq/lavis/internal/agent/turn"
	"github.com/lavishq/lavis/internal/agent/vision"
	"github.com/lavishq/lavis/internal/logging"
	"github.com/lavishq/lavis/internal/store"
)

const (
	// DefaultSummaryThreshold is the session token estimate above which
	// older messages are folded into a summary.
	DefaultSummaryThreshold = 100_000

	// imageTokenCost approximates what one inline screenshot costs.
	imageTokenCost = 1500

	// summaryKeepRecent messages stay verbatim when compressing.
	summaryKeepRecent = 4

	summaryMaxTokens = 1024
)

const summarySystemPrompt = "Condense the conversation below into a short summary. " +
	"Preserve the user's goals, the actions taken, their outcomes, and any unresolved state. " +
	"Reply with the summary only."

// EstimateTokens approximates the token count of a string.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Store     *store.Store
	Window    *Window
	Compactor *vision.Compactor
	Cold      *vision.ColdStorage
	// Model summarizes old messages during compression. Nil disables
	// summary compression.
	Model            ai.ChatModel
	SummaryThreshold int
}

// Manager is the seam between the in-memory window, the durable
// store, and the visual compactor. Every saved message lands in both
// the window and the store; finished turns are compacted; oversized
// sessions are summarized.
type Manager struct {
	store            *store.Store
	window           *Window
	compactor        *vision.Compactor
	cold             *vision.ColdStorage
	model            ai.ChatModel
	summaryThreshold int

	mu         sync.Mutex
	sessionKey string

	compactMu sync.Mutex
	queueMu   sync.Mutex
	queue     []string
}

// NewManager builds a Manager. A non-positive threshold uses the
// default.
func NewManager(cfg ManagerConfig) *Manager {
	threshold := cfg.SummaryThreshold
	if threshold <= 0 {
		threshold = DefaultSummaryThreshold
	}
	return &Manager{
		store:            cfg.Store,
		window:           cfg.Window,
		compactor:        cfg.Compactor,
		cold:             cfg.Cold,
		model:            cfg.Model,
		summaryThreshold: threshold,
	}
}

// Window exposes the conversation window for prompt assembly.
func (m *Manager) Window() *Window { return m.window }

// CurrentSessionKey returns the active session key, creating the
// session row on first use.
func (m *Manager) CurrentSessionKey() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionKey == "" {
		key := "session-" + uuid.NewString()
		if err := m.store.CreateSession(key); err != nil {
			return "", err
		}
		m.sessionKey = key
		logging.Infof("started session %s", key)
	}
	return m.sessionKey, nil
}

// SaveMessage appends a message to the window and persists it.
// turnPos orders the message inside its turn; pass -1 outside a turn.
func (m *Manager) SaveMessage(e Entry, turnPos int) error {
	key, err := m.CurrentSessionKey()
	if err != nil {
		return err
	}

	estimate := messageEstimate(e)
	m.window.Append(e)

	msg := &store.Message{
		SessionKey:    key,
		Role:          e.Role,
		Content:       e.Content,
		ImageID:       e.ImageID,
		TokenEstimate: estimate,
		TurnID:        e.TurnID,
	}
	if turnPos >= 0 {
		msg.TurnPosition = turnPos
	}
	if len(e.ToolCalls) > 0 {
		msg.ToolCalls, _ = json.Marshal(e.ToolCalls)
	}
	if len(e.ToolResults) > 0 {
		msg.ToolResults, _ = json.Marshal(e.ToolResults)
	}

	if _, err := m.store.AppendMessage(msg); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	return m.store.BumpSession(key, estimate)
}

// SaveMessageWithImage is SaveMessage with the image binding set.
func (m *Manager) SaveMessageWithImage(e Entry, turnPos int, imageID string) error {
	e.ImageID = imageID
	return m.SaveMessage(e, turnPos)
}

// OnTurnEnd compacts the finished turn's visual footprint. At most one
// compaction runs at a time; contenders enqueue the turn id and return
// immediately, leaving the drain to the current holder.
func (m *Manager) OnTurnEnd(t turn.Summary) {
	if t.ID == "" {
		return
	}
	m.queueMu.Lock()
	m.queue = append(m.queue, t.ID)
	m.queueMu.Unlock()

	if !m.compactMu.TryLock() {
		logging.Debugf("compaction busy, queued turn %s", t.ID)
		return
	}
	defer m.compactMu.Unlock()

	for {
		m.queueMu.Lock()
		if len(m.queue) == 0 {
			m.queueMu.Unlock()
			return
		}
		id := m.queue[0]
		m.queue = m.queue[1:]
		m.queueMu.Unlock()

		archived, err := m.compactor.CompactTurn(id)
		if err != nil {
			logging.Warnf("compact turn %s: %v", id, err)
			continue
		}
		for _, imageID := range archived {
			m.window.EvictImagePayload(imageID)
		}
	}
}

// ManageMemory re-applies the image budget and, when the session's
// token estimate crosses the threshold, folds older messages into a
// single summary. Returns the evicted payload count and whether a
// summary compression ran.
func (m *Manager) ManageMemory(ctx context.Context) (int, bool, error) {
	cleaned := m.window.EnforceImageBudget()

	key, err := m.CurrentSessionKey()
	if err != nil {
		return cleaned, false, err
	}
	sess, err := m.store.GetSession(key)
	if err != nil {
		return cleaned, false, err
	}
	if sess.TokenEstimate < m.summaryThreshold || m.model == nil {
		return cleaned, false, nil
	}

	compressed, err := m.compressHistory(ctx, key)
	return cleaned, compressed, err
}

// compressHistory summarizes everything but the most recent messages
// and rewrites the window around the summary.
func (m *Manager) compressHistory(ctx context.Context, key string) (bool, error) {
	entries := m.window.Entries()
	if len(entries) <= summaryKeepRecent {
		return false, nil
	}
	cut := len(entries) - summaryKeepRecent
	for cut < len(entries) && entries[cut].Role == ai.RoleTool {
		cut++
	}
	if cut == len(entries) {
		return false, nil
	}

	resp, err := m.model.Generate(ctx, &ai.GenerateRequest{
		System: summarySystemPrompt,
		Messages: []ai.Message{
			{Role: ai.RoleUser, Content: renderTranscript(entries[:cut])},
		},
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return false, fmt.Errorf("summarize history: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return false, nil
	}

	summary := Entry{Message: ai.Message{
		Role:    ai.RoleSystem,
		Content: "Summary of earlier conversation:\n" + text,
	}}
	m.window.ReplaceHead(cut, summary)

	total := 0
	for _, e := range m.window.Entries() {
		total += messageEstimate(e)
	}
	if err := m.store.SetSessionTokenEstimate(key, total); err != nil {
		return true, err
	}
	logging.Infof("compressed session %s history, new estimate %d tokens", key, total)
	return true, nil
}

// ResetSession clears the window and starts a fresh session. Rows of
// the previous session stay in the store.
func (m *Manager) ResetSession() (string, error) {
	m.window.Clear()
	m.mu.Lock()
	m.sessionKey = ""
	m.mu.Unlock()
	return m.CurrentSessionKey()
}

// CleanupImages prunes cold storage entries older than maxAge.
func (m *Manager) CleanupImages(maxAge time.Duration) (int, error) {
	if m.cold == nil {
		return 0, nil
	}
	return m.cold.Cleanup(maxAge)
}

func messageEstimate(e Entry) int {
	n := EstimateTokens(e.Content)
	for _, tc := range e.ToolCalls {
		n += EstimateTokens(tc.Name) + EstimateTokens(string(tc.Args))
	}
	for _, tr := range e.ToolResults {
		n += EstimateTokens(tr.Content)
	}
	return n + imageTokenCost*len(e.Images)
}

func renderTranscript(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		if e.Content != "" {
			fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Content)
		}
		for _, tc := range e.ToolCalls {
			fmt.Fprintf(&b, "%s -> %s(%s)\n", e.Role, tc.Name, tc.Args)
		}
		for _, tr := range e.ToolResults {
			fmt.Fprintf(&b, "tool result: %s\n", tr.Content)
		}
	}
	return b.String()
}
