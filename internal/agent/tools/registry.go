// Package tools is the unified surface of everything the model can
// invoke: built-in desktop operations, utility tools, and dynamically
// registered skill tools. The registry validates arguments against
// each tool's JSON schema before dispatch and never lets a failure
// escape as anything but a marked result string.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lavishq/lavis/internal/agent/ai"
	"github.com/lavishq/lavis/internal/logging"
)

// FailureMarker prefixes every failed tool result.
const FailureMarker = "❌"

// TerminatorName is the tool the model calls to end the loop.
const TerminatorName = "complete_tool"

// DefaultWait is the post-action settle time for visual-impact tools
// without their own entry.
const DefaultWait = 200 * time.Millisecond

// HandlerFunc executes one tool call. args hold the schema-validated
// arguments.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one invocable capability.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
	// VisualImpact marks tools whose execution plausibly changes the
	// screen; the reasoning loop re-perceives after running one.
	VisualImpact bool
	// Wait is the post-action settle time. Zero means DefaultWait for
	// visual-impact tools and no wait otherwise.
	Wait    time.Duration
	Handler HandlerFunc
}

// ChangeListener is notified when tools are added or removed.
type ChangeListener func(added, removed []string)

// Registry holds the tool set.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*Tool
	compiled  map[string]*jsonschema.Schema
	listeners []ChangeListener
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]*Tool),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool. Names are globally unique: registering over an
// existing name is an error, so a skill can never shadow a built-in.
// The schema is compiled eagerly; a malformed schema is rejected here
// rather than at call time.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}

	var schema *jsonschema.Schema
	if len(t.Schema) > 0 {
		var err error
		schema, err = jsonschema.CompileString(t.Name+".schema.json", string(t.Schema))
		if err != nil {
			return fmt.Errorf("tool %s: invalid schema: %w", t.Name, err)
		}
	}

	r.mu.Lock()
	if _, exists := r.tools[t.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	if schema != nil {
		r.compiled[t.Name] = schema
	}
	r.mu.Unlock()

	r.notifyListeners([]string{t.Name}, nil)
	return nil
}

// Unregister removes a tool by name. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	_, existed := r.tools[name]
	delete(r.tools, name)
	delete(r.compiled, name)
	r.mu.Unlock()

	if existed {
		r.notifyListeners(nil, []string{name})
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specifications returns the tool set for the model, sorted by name so
// prompts stay deterministic.
func (r *Registry) Specifications() []ai.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]ai.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, ai.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Schema:      t.Schema,
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// IsVisualImpact reports whether running name plausibly changed the
// screen.
func (r *Registry) IsVisualImpact(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return ok && t.VisualImpact
}

// WaitFor returns how long the loop should let the UI settle after
// running name.
func (r *Registry) WaitFor(name string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return 0
	}
	if t.Wait > 0 {
		return t.Wait
	}
	if t.VisualImpact {
		return DefaultWait
	}
	return 0
}

// OnChange subscribes to registry mutations.
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) notifyListeners(added, removed []string) {
	r.mu.RLock()
	listeners := make([]ChangeListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(added, removed)
	}
}

// Execute dispatches one tool call. The result is always a non-empty
// string; every failure, including malformed arguments, an unknown
// name, or a handler panic, is folded into a string starting with the
// failure marker so the model can read it.
func (r *Registry) Execute(ctx context.Context, name string, rawArgs json.RawMessage) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Errorf("tool %s panicked: %v", name, rec)
			result = fmt.Sprintf("%s %s crashed: %v", FailureMarker, name, rec)
		}
	}()

	r.mu.RLock()
	t, ok := r.tools[name]
	schema := r.compiled[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Sprintf("%s unknown tool: %s", FailureMarker, name)
	}

	args := map[string]any{}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return fmt.Sprintf("%s %s: arguments are not a JSON object: %v", FailureMarker, name, err)
		}
	}

	if schema != nil {
		if err := schema.Validate(args); err != nil {
			return fmt.Sprintf("%s %s: invalid arguments: %v", FailureMarker, name, err)
		}
	}

	out, err := t.Handler(ctx, args)
	if err != nil {
		return fmt.Sprintf("%s %s failed: %v", FailureMarker, name, err)
	}
	if out == "" {
		out = name + " completed"
	}
	return out
}
