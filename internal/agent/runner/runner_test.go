package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavishq/lavis/internal/agent/ai"
	"github.com/lavishq/lavis/internal/agent/memory"
	"github.com/lavishq/lavis/internal/agent/tools"
	"github.com/lavishq/lavis/internal/agent/turn"
	"github.com/lavishq/lavis/internal/agent/vision"
	"github.com/lavishq/lavis/internal/screen"
	"github.com/lavishq/lavis/internal/store"
)

// scriptedModel replays a fixed sequence of responses and records
// every request it saw.
type scriptedModel struct {
	mu       sync.Mutex
	script   []func(req *ai.GenerateRequest) (*ai.GenerateResponse, error)
	requests []*ai.GenerateRequest
}

func (m *scriptedModel) Name() string { return "scripted-fake" }

func (m *scriptedModel) Generate(ctx context.Context, req *ai.GenerateRequest) (*ai.GenerateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	i := len(m.requests) - 1
	if i >= len(m.script) {
		i = len(m.script) - 1
	}
	return m.script[i](req)
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *scriptedModel) request(i int) *ai.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func reply(text string, calls ...ai.ToolCall) func(*ai.GenerateRequest) (*ai.GenerateResponse, error) {
	return func(*ai.GenerateRequest) (*ai.GenerateResponse, error) {
		return &ai.GenerateResponse{Text: text, ToolCalls: calls}, nil
	}
}

// fakePerceiver serves PNG frames of a solid shade. Bump the shade to
// make the next frame visually distinct.
type fakePerceiver struct {
	mu    sync.Mutex
	shade uint8
	err   error
}

func (p *fakePerceiver) Capture(ctx context.Context) (*screen.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	for y := 0; y < 32; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, color.RGBA{p.shade, p.shade, p.shade, 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &screen.Frame{Data: buf.Bytes(), Width: 32, Height: 32}, nil
}

func (p *fakePerceiver) bump() {
	p.mu.Lock()
	p.shade += 0x40
	p.mu.Unlock()
}

type harness struct {
	runner    *Runner
	model     *scriptedModel
	perceiver *fakePerceiver
	registry  *tools.Registry
	mem       *memory.Manager
	clicks    int
}

func newHarness(t *testing.T, model *scriptedModel) *harness {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cold, err := vision.NewColdStorage(t.TempDir())
	require.NoError(t, err)

	perceiver := &fakePerceiver{}
	capturer := vision.NewCapturer(perceiver, cold, vision.DefaultDedupThreshold)

	mem := memory.NewManager(memory.ManagerConfig{
		Store:     st,
		Window:    memory.NewWindow(20, 10),
		Compactor: vision.NewCompactor(st, []string{"❌"}),
		Cold:      cold,
	})

	h := &harness{model: model, perceiver: perceiver, mem: mem}

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&tools.Tool{
		Name:         "click",
		Description:  "Click at normalized coordinates",
		Schema:       []byte(`{"type":"object","properties":{"x":{"type":"number"},"y":{"type":"number"}},"required":["x","y"]}`),
		VisualImpact: true,
		Wait:         5 * time.Millisecond,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			h.clicks++
			h.perceiver.bump()
			return fmt.Sprintf("Clicked at (%v, %v)", args["x"], args["y"]), nil
		},
	}))
	require.NoError(t, registry.Register(&tools.Tool{
		Name:        tools.TerminatorName,
		Description: "Signal that the goal is complete",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "Task completed.", nil
		},
	}))
	require.NoError(t, registry.Register(&tools.Tool{
		Name:        "noop",
		Description: "Do nothing",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}))
	h.registry = registry

	var m ai.ChatModel
	if model != nil {
		m = model
	}
	h.runner = New(Config{
		Model:     m,
		Registry:  registry,
		Capturer:  capturer,
		Cold:      cold,
		Turns:     turn.New(),
		Memory:    mem,
		RetryBase: time.Millisecond,
	})
	return h
}

func TestChatWithoutToolCalls(t *testing.T) {
	model := &scriptedModel{script: []func(*ai.GenerateRequest) (*ai.GenerateResponse, error){
		reply("Hello! The screen shows a mostly white desktop."),
	}}
	h := newHarness(t, model)

	resp, err := h.runner.Chat(context.Background(), "hi, what do you see?")
	require.NoError(t, err)
	assert.Equal(t, "Hello! The screen shows a mostly white desktop.", resp)
	assert.Equal(t, 1, model.calls())

	// The request carried the user text plus the initial screenshot.
	req := model.request(0)
	require.NotEmpty(t, req.Messages)
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, ai.RoleUser, last.Role)
	assert.Len(t, last.Images, 1)
	assert.NotEmpty(t, req.System)
}

func TestClickWorkflowObservesAfterAction(t *testing.T) {
	model := &scriptedModel{script: []func(*ai.GenerateRequest) (*ai.GenerateResponse, error){
		reply("Clicking the button.", ai.ToolCall{
			ID: "call-1", Name: "click", Args: []byte(`{"x":500,"y":420}`),
		}),
		reply("The dialog opened; done."),
	}}
	h := newHarness(t, model)

	resp, err := h.runner.Chat(context.Background(), "open the dialog")
	require.NoError(t, err)
	assert.Equal(t, 1, h.clicks)
	assert.Equal(t, 2, model.calls())
	assert.Contains(t, resp, "Clicking the button.")
	assert.Contains(t, resp, "Clicked at (500, 420)")
	assert.Contains(t, resp, "The dialog opened; done.")

	// The second request ends with the post-action observation:
	// tool summary text plus a fresh screenshot.
	req := model.request(1)
	obs := req.Messages[len(req.Messages)-1]
	assert.Equal(t, ai.RoleUser, obs.Role)
	assert.Contains(t, obs.Content, "Tool execution finished")
	assert.Contains(t, obs.Content, "click:")
	assert.Len(t, obs.Images, 1)
}

func TestTerminatorEndsLoop(t *testing.T) {
	model := &scriptedModel{script: []func(*ai.GenerateRequest) (*ai.GenerateResponse, error){
		reply("All steps finished.", ai.ToolCall{
			ID: "call-1", Name: tools.TerminatorName, Args: []byte(`{}`),
		}),
	}}
	h := newHarness(t, model)

	resp, err := h.runner.RunTask(context.Background(), "finish up")
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls())
	assert.Contains(t, resp, "All steps finished.")
	assert.Contains(t, resp, "Task completed.")
}

func TestChatStepCap(t *testing.T) {
	model := &scriptedModel{script: []func(*ai.GenerateRequest) (*ai.GenerateResponse, error){
		reply("", ai.ToolCall{ID: "loop", Name: "noop", Args: []byte(`{}`)}),
	}}
	h := newHarness(t, model)
	h.runner.chatStepCap = 3

	resp, err := h.runner.Chat(context.Background(), "spin forever")
	require.NoError(t, err)
	assert.Equal(t, 3, model.calls())
	assert.Contains(t, resp, "Max iterations reached (3 steps)")
}

func TestUnavailableWithoutModel(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.runner.Chat(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = h.runner.RunTask(context.Background(), "do something")
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.False(t, h.runner.Available())
	assert.Equal(t, "", h.runner.ModelName())
	assert.False(t, h.runner.Stop())
}

func TestModelFailureSurfacesInResponse(t *testing.T) {
	boom := errors.New("backend exploded")
	model := &scriptedModel{script: []func(*ai.GenerateRequest) (*ai.GenerateResponse, error){
		func(*ai.GenerateRequest) (*ai.GenerateResponse, error) { return nil, boom },
	}}
	h := newHarness(t, model)

	resp, err := h.runner.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Contains(t, resp, "AI request failed")
	assert.Contains(t, resp, "backend exploded")
	// Default attempt budget was spent.
	assert.Equal(t, DefaultRetryAttempts, model.calls())
}

func TestStopCancelsInFlightRun(t *testing.T) {
	started := make(chan struct{})
	model := &scriptedModel{}
	model.script = []func(*ai.GenerateRequest) (*ai.GenerateResponse, error){
		reply("Working on it.", ai.ToolCall{ID: "c1", Name: "slow", Args: []byte(`{}`)}),
		reply("should never be reached"),
	}
	h := newHarness(t, model)
	require.NoError(t, h.registry.Register(&tools.Tool{
		Name:        "slow",
		Description: "Block until cancelled",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		},
	}))

	done := make(chan string, 1)
	go func() {
		resp, err := h.runner.RunTask(context.Background(), "run forever")
		if err != nil {
			done <- "error: " + err.Error()
			return
		}
		done <- resp
	}()

	<-started
	assert.Equal(t, StateRunning, h.runner.State())
	assert.True(t, h.runner.Stop())

	select {
	case resp := <-done:
		assert.True(t, strings.HasSuffix(resp, "Cancelled."), "got %q", resp)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	assert.Equal(t, StateIdle, h.runner.State())
}

func TestScreenshotFailureDegradesToText(t *testing.T) {
	model := &scriptedModel{script: []func(*ai.GenerateRequest) (*ai.GenerateResponse, error){
		reply("No screen, answering from context."),
	}}
	h := newHarness(t, model)
	h.perceiver.mu.Lock()
	h.perceiver.err = errors.New("display sleeping")
	h.perceiver.mu.Unlock()

	resp, err := h.runner.Chat(context.Background(), "what now?")
	require.NoError(t, err)
	assert.Equal(t, "No screen, answering from context.", resp)

	req := model.request(0)
	last := req.Messages[len(req.Messages)-1]
	assert.Empty(t, last.Images)
}

func TestFailedToolMarkedAsError(t *testing.T) {
	model := &scriptedModel{script: []func(*ai.GenerateRequest) (*ai.GenerateResponse, error){
		reply("Trying.", ai.ToolCall{ID: "c1", Name: "broken", Args: []byte(`{}`)}),
		reply("That did not work, giving up."),
	}}
	h := newHarness(t, model)
	require.NoError(t, h.registry.Register(&tools.Tool{
		Name:        "broken",
		Description: "Always fails",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("element not found")
		},
	}))

	resp, err := h.runner.Chat(context.Background(), "press the missing button")
	require.NoError(t, err)
	assert.Contains(t, resp, tools.FailureMarker)
	assert.Contains(t, resp, "element not found")

	req := model.request(1)
	var toolMsg *ai.Message
	for i := range req.Messages {
		if len(req.Messages[i].ToolResults) > 0 {
			toolMsg = &req.Messages[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.True(t, toolMsg.ToolResults[0].IsError)
}
