// Package runner drives the reasoning loop: screenshot in, model call,
// tool dispatch, post-action observation, repeat until the model stops
// asking for tools or invokes the terminator.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lavishq/lavis/internal/agent/ai"
	"github.com/lavishq/lavis/internal/agent/memory"
	"github.com/lavishq/lavis/internal/agent/skills"
	"github.com/lavishq/lavis/internal/agent/tools"
	"github.com/lavishq/lavis/internal/agent/turn"
	"github.com/lavishq/lavis/internal/agent/vision"
	"github.com/lavishq/lavis/internal/events"
	"github.com/lavishq/lavis/internal/logging"
)

const (
	// DefaultChatStepCap bounds interactive chat requests. Goal-directed
	// tasks run uncapped.
	DefaultChatStepCap = 25

	// DefaultRetryAttempts and DefaultRetryBase govern model-call retries.
	DefaultRetryAttempts = 3
	// DefaultRetryBase is the initial backoff between attempts.
	DefaultRetryBase = 2 * time.Second

	// cancelledMarker is the tool-result content recorded when a unit of
	// work is cancelled mid-flight.
	cancelledMarker = "cancelled"
)

// Orchestrator states reported by State.
const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// ErrUnavailable is returned when no chat model is configured. It is
// the only error the reasoning entry points return; everything past
// that precondition comes back as response text.
var ErrUnavailable = errors.New("no chat model configured: set an API key and restart")

// Config wires a Runner.
type Config struct {
	Model    ai.ChatModel // nil renders the runner unavailable
	Registry *tools.Registry
	Capturer *vision.Capturer
	Cold     *vision.ColdStorage
	Turns    *turn.Context
	Memory   *memory.Manager
	Skills   *skills.ExecutionContext // optional

	ChatStepCap   int
	RetryAttempts int
	RetryBase     time.Duration
	// WaitOverrides replaces a tool's post-action settle time, keyed by
	// tool name. Unset tools use the registry's built-in table.
	WaitOverrides map[string]time.Duration

	// Notify, when set, receives loop lifecycle events (turn start/end,
	// tool dispatches) for the local event stream.
	Notify func(event string, payload map[string]any)
}

// Runner executes one reasoning request at a time against the live
// desktop. Top-level requests are serialized; a skill that re-enters
// the runner mid-request joins the enclosing turn instead of queuing.
type Runner struct {
	model    ai.ChatModel
	registry *tools.Registry
	capturer *vision.Capturer
	cold     *vision.ColdStorage
	turns    *turn.Context
	memory   *memory.Manager
	skills   *skills.ExecutionContext

	chatStepCap   int
	retryAttempts int
	retryBase     time.Duration
	waitOverrides map[string]time.Duration
	notify        func(event string, payload map[string]any)

	runMu sync.Mutex // serializes top-level units of work

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// New builds a Runner. Zero limits fall back to the defaults.
func New(cfg Config) *Runner {
	if cfg.ChatStepCap <= 0 {
		cfg.ChatStepCap = DefaultChatStepCap
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	return &Runner{
		model:         cfg.Model,
		registry:      cfg.Registry,
		capturer:      cfg.Capturer,
		cold:          cfg.Cold,
		turns:         cfg.Turns,
		memory:        cfg.Memory,
		skills:        cfg.Skills,
		chatStepCap:   cfg.ChatStepCap,
		retryAttempts: cfg.RetryAttempts,
		retryBase:     cfg.RetryBase,
		waitOverrides: cfg.WaitOverrides,
		notify:        cfg.Notify,
	}
}

func (r *Runner) emit(event string, payload map[string]any) {
	if r.notify != nil {
		r.notify(event, payload)
	}
}

// Available reports whether a chat model is configured.
func (r *Runner) Available() bool { return r.model != nil }

// ModelName returns the configured model identifier, or "" when the
// runner is unavailable.
func (r *Runner) ModelName() string {
	if r.model == nil {
		return ""
	}
	return r.model.Name()
}

// State reports the orchestrator state for the status surface.
func (r *Runner) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return StateRunning
	}
	return StateIdle
}

// Stop cancels the in-flight unit of work, if any. It reports whether
// a cancellation was delivered.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Chat performs one user chat request, capped at the configured number
// of reasoning steps.
func (r *Runner) Chat(ctx context.Context, text string) (string, error) {
	return r.run(ctx, text, r.chatStepCap)
}

// RunTask performs one goal-directed request with no step cap. It is
// the entry point for scheduled tasks and agent skills.
func (r *Runner) RunTask(ctx context.Context, goal string) (string, error) {
	return r.run(ctx, goal, 0)
}

// nestedKey marks a context as already inside a unit of work. A skill
// command that re-enters the runner carries it, so the nested request
// runs inline under the enclosing turn instead of deadlocking on the
// serialization lock.
type nestedKey struct{}

func (r *Runner) run(ctx context.Context, text string, stepCap int) (string, error) {
	if r.model == nil {
		return "", ErrUnavailable
	}
	if ctx.Value(nestedKey{}) != nil {
		return r.loop(ctx, text, stepCap), nil
	}

	r.runMu.Lock()
	defer r.runMu.Unlock()

	ctx, cancel := context.WithCancel(context.WithValue(ctx, nestedKey{}, true))
	defer cancel()

	r.mu.Lock()
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.running = false
		r.mu.Unlock()
	}()

	return r.loop(ctx, text, stepCap), nil
}

// loop is one reasoning request. It opens a turn, feeds the model the
// conversation plus the current screen, dispatches requested tools,
// and re-observes after anything that changes the screen. The turn is
// closed on every exit path, panics included.
func (r *Runner) loop(ctx context.Context, text string, stepCap int) string {
	turnID := r.turns.Begin()
	r.emit(events.TypeTurnStart, map[string]any{"turn_id": turnID})
	defer func() {
		if summary, closed := r.turns.End(); closed {
			r.emit(events.TypeTurnEnd, map[string]any{
				"turn_id":  summary.ID,
				"messages": summary.Messages,
				"images":   len(summary.ImageIDs),
			})
			r.memory.OnTurnEnd(summary)
		}
	}()

	// Initial view. A reused frame whose cold bytes were already cleaned
	// up is recaptured, so the model never references a missing image.
	shot, err := r.capturer.Capture(ctx, r.turns, vision.CaptureOptions{})
	if err == nil && shot.Reused && !r.cold.Has(shot.ImageID) {
		logging.Debugf("reused image %s no longer in cold storage, recapturing", shot.ImageID)
		shot, err = r.capturer.Capture(ctx, r.turns, vision.CaptureOptions{Force: true})
	}
	if err != nil {
		logging.Warnf("initial screenshot failed: %v", err)
		shot = nil
	}

	userMsg := ai.Message{Role: ai.RoleUser, Content: text}
	imageID := ""
	if shot != nil {
		userMsg.Images = [][]byte{shot.Frame.Data}
		imageID = shot.ImageID
	}
	r.save(memory.Entry{Message: userMsg, TurnID: turnID}, imageID)

	system := buildSystemPrompt(r.model.Name(), r.skills)
	msgs := r.memory.Window().Messages()
	specs := r.registry.Specifications()

	var accumulated []string
	steps := 0

	for {
		if ctx.Err() != nil {
			return r.cancelled(turnID, accumulated)
		}
		steps++

		start := time.Now()
		resp, err := ai.GenerateWithRetry(ctx, r.model, &ai.GenerateRequest{
			System:   system,
			Messages: msgs,
			Tools:    specs,
		}, r.retryAttempts, r.retryBase)
		if err != nil {
			if ctx.Err() != nil {
				return r.cancelled(turnID, accumulated)
			}
			logging.Errorf("model call failed after %d attempts: %v", r.retryAttempts, err)
			return finish(accumulated, fmt.Sprintf("AI request failed after %d attempts: %v", r.retryAttempts, err))
		}
		logging.Debugf("step %d: model answered in %s with %d tool calls",
			steps, time.Since(start).Round(time.Millisecond), len(resp.ToolCalls))

		assistant := ai.Message{Role: ai.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls}
		msgs = append(msgs, assistant)
		r.save(memory.Entry{Message: assistant, TurnID: turnID}, "")

		if len(resp.ToolCalls) == 0 {
			return finish(accumulated, resp.Text)
		}
		if resp.Text != "" {
			accumulated = append(accumulated, resp.Text)
		}

		results := make([]ai.ToolResult, 0, len(resp.ToolCalls))
		dispatched := make([]string, 0, len(resp.ToolCalls))
		visual := false
		terminated := false
		for _, call := range resp.ToolCalls {
			out := r.registry.Execute(ctx, call.Name, call.Args)
			r.emit(events.TypeToolDispatch, map[string]any{
				"turn_id": turnID,
				"tool":    call.Name,
				"failed":  strings.HasPrefix(out, tools.FailureMarker),
			})
			results = append(results, ai.ToolResult{
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    out,
				IsError:    strings.HasPrefix(out, tools.FailureMarker),
			})
			dispatched = append(dispatched, call.Name)
			if r.registry.IsVisualImpact(call.Name) {
				visual = true
			}
			if call.Name == tools.TerminatorName {
				terminated = true
			}
			accumulated = append(accumulated, out)
		}

		toolMsg := ai.Message{Role: ai.RoleTool, ToolResults: results}
		msgs = append(msgs, toolMsg)
		r.save(memory.Entry{Message: toolMsg, TurnID: turnID}, "")

		if terminated {
			return finish(accumulated, "")
		}
		if ctx.Err() != nil {
			return r.cancelled(turnID, accumulated)
		}

		if visual {
			if !sleepCtx(ctx, r.settleTime(dispatched)) {
				return r.cancelled(turnID, accumulated)
			}
			obs, obsImageID := r.observe(ctx, results)
			if ctx.Err() != nil {
				return r.cancelled(turnID, accumulated)
			}
			msgs = append(msgs, obs)
			r.save(memory.Entry{Message: obs, TurnID: turnID}, obsImageID)
		}

		if stepCap > 0 && steps >= stepCap {
			logging.Warnf("reasoning loop hit the step cap (%d)", stepCap)
			return finish(accumulated, fmt.Sprintf("Max iterations reached (%d steps); stopping here.", steps))
		}
	}
}

// observe recaptures the screen after a visual-impact action and builds
// the observation for the next iteration. The recapture is forced: the
// screen just changed, so dedup must not collapse it. A failed capture
// gets one retry with the dedup cache cleared; if that also fails, the
// observation degrades to text so the model can reason about the
// missing view.
func (r *Runner) observe(ctx context.Context, results []ai.ToolResult) (ai.Message, string) {
	var sb strings.Builder
	sb.WriteString("Tool execution finished:\n")
	for _, res := range results {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", res.Name, firstLine(res.Content)))
	}
	sb.WriteString("\nCheck your recent history before the next action: if your last two actions were identical and the screen did not change, do NOT repeat the same call a third time. Change the approach instead.")

	shot, err := r.capturer.Capture(ctx, r.turns, vision.CaptureOptions{Force: true})
	if err != nil {
		r.capturer.Reset()
		shot, err = r.capturer.Capture(ctx, r.turns, vision.CaptureOptions{Force: true})
	}
	if err != nil {
		logging.Warnf("post-action screenshot failed: %v", err)
		sb.WriteString(fmt.Sprintf("\n\n[Screenshot failed: %v. Continue without the visual update, relying on the tool results above.]", err))
		return ai.Message{Role: ai.RoleUser, Content: sb.String()}, ""
	}

	sb.WriteString("\n\nHere is the current state of the screen:")
	return ai.Message{
		Role:    ai.RoleUser,
		Content: sb.String(),
		Images:  [][]byte{shot.Frame.Data},
	}, shot.ImageID
}

// cancelled records the cancellation marker and returns whatever the
// loop had produced so far.
func (r *Runner) cancelled(turnID string, accumulated []string) string {
	logging.Infof("reasoning loop cancelled")
	marker := ai.Message{
		Role: ai.RoleTool,
		ToolResults: []ai.ToolResult{{
			ToolCallID: cancelledMarker,
			Name:       cancelledMarker,
			Content:    cancelledMarker,
			IsError:    true,
		}},
	}
	r.save(memory.Entry{Message: marker, TurnID: turnID}, "")
	return finish(accumulated, "Cancelled.")
}

// save persists a message to the window and store, ordered inside the
// current turn. Persistence failures degrade to a log line; the loop
// keeps its in-memory copy either way.
func (r *Runner) save(e memory.Entry, imageID string) {
	pos := r.turns.NextPosition()
	var err error
	if imageID != "" {
		err = r.memory.SaveMessageWithImage(e, pos, imageID)
	} else {
		err = r.memory.SaveMessage(e, pos)
	}
	if err != nil {
		logging.Warnf("save %s message: %v", e.Role, err)
	}
}

// settleTime is the post-action wait: the longest settle time among
// the dispatched tools.
func (r *Runner) settleTime(names []string) time.Duration {
	var wait time.Duration
	for _, name := range names {
		d, ok := r.waitOverrides[name]
		if !ok {
			d = r.registry.WaitFor(name)
		}
		if d > wait {
			wait = d
		}
	}
	return wait
}

// finish joins the accumulated narration and tool outcomes with the
// closing text into the single response string.
func finish(accumulated []string, closing string) string {
	if closing != "" {
		accumulated = append(accumulated, closing)
	}
	if len(accumulated) == 0 {
		return "Done."
	}
	return strings.Join(accumulated, "\n\n")
}

// firstLine returns the first line of s, capped for observation
// summaries. Full outputs already went to the model as tool results.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 200
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
