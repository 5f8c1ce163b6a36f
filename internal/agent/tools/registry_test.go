package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its message argument",
		Schema:      json.RawMessage(`{"type": "object", "properties": {"msg": {"type": "string"}}, "required": ["msg"]}`),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return args["msg"].(string), nil
		},
	}
}

func runTool(t *testing.T, r *Registry, name string, args map[string]any) string {
	t.Helper()
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			t.Fatal(err)
		}
		raw = b
	}
	return r.Execute(context.Background(), name, raw)
}

func TestRegistryRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got := runTool(t, r, "echo", map[string]any{"msg": "hello"})
	if got != "hello" {
		t.Errorf("Execute = %q, want %q", got, "hello")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatal(err)
	}
	err := r.Register(echoTool("echo"))
	if err == nil {
		t.Fatal("registering a duplicate name should fail")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("error = %v, want mention of already registered", err)
	}
}

func TestRegistryRejectsInvalidSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Tool{
		Name:    "broken",
		Schema:  json.RawMessage(`{"type": 12}`),
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
	})
	if err == nil {
		t.Fatal("registering a malformed schema should fail")
	}
}

func TestRegistryRejectsIncompleteTools(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Error("nil tool should be rejected")
	}
	if err := r.Register(&Tool{Handler: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }}); err == nil {
		t.Error("unnamed tool should be rejected")
	}
	if err := r.Register(&Tool{Name: "no_handler"}); err == nil {
		t.Error("handlerless tool should be rejected")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	got := runTool(t, r, "missing", nil)
	if !strings.HasPrefix(got, FailureMarker) {
		t.Errorf("result %q should start with the failure marker", got)
	}
	if !strings.Contains(got, "unknown tool: missing") {
		t.Errorf("result %q should name the unknown tool", got)
	}
}

func TestExecuteValidatesBeforeDispatch(t *testing.T) {
	r := NewRegistry()
	called := false
	err := r.Register(&Tool{
		Name:   "strict",
		Schema: json.RawMessage(`{"type": "object", "properties": {"n": {"type": "integer", "minimum": 0, "maximum": 10}}, "required": ["n"]}`),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			called = true
			return "ran", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	for name, args := range map[string]map[string]any{
		"missing required": {},
		"wrong type":       {"n": "five"},
		"out of range":     {"n": float64(99)},
		"fractional":       {"n": 1.5},
	} {
		got := runTool(t, r, "strict", args)
		if !strings.HasPrefix(got, FailureMarker) {
			t.Errorf("%s: result %q should start with the failure marker", name, got)
		}
		if !strings.Contains(got, "invalid arguments") {
			t.Errorf("%s: result %q should report invalid arguments", name, got)
		}
	}
	if called {
		t.Error("handler ran despite failed validation")
	}

	if got := runTool(t, r, "strict", map[string]any{"n": float64(5)}); got != "ran" {
		t.Errorf("valid arguments: got %q, want %q", got, "ran")
	}
}

func TestExecuteRejectsNonObjectArguments(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatal(err)
	}
	got := r.Execute(context.Background(), "echo", json.RawMessage(`[1, 2]`))
	if !strings.Contains(got, "arguments are not a JSON object") {
		t.Errorf("result = %q, want JSON object complaint", got)
	}
}

func TestExecuteToolWithoutSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Tool{
		Name: "free",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "anything goes", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := runTool(t, r, "free", map[string]any{"whatever": true}); got != "anything goes" {
		t.Errorf("Execute = %q", got)
	}
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Tool{
		Name: "boom",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			panic("kaboom")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := runTool(t, r, "boom", nil)
	if !strings.HasPrefix(got, FailureMarker) {
		t.Errorf("result %q should start with the failure marker", got)
	}
	if !strings.Contains(got, "crashed") || !strings.Contains(got, "kaboom") {
		t.Errorf("result %q should describe the panic", got)
	}
}

func TestExecuteWrapsHandlerError(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Tool{
		Name: "flaky",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", context.DeadlineExceeded
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := runTool(t, r, "flaky", nil)
	want := FailureMarker + " flaky failed: context deadline exceeded"
	if got != want {
		t.Errorf("Execute = %q, want %q", got, want)
	}
}

func TestExecuteFillsEmptyResult(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Tool{
		Name: "silent",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := runTool(t, r, "silent", nil); got != "silent completed" {
		t.Errorf("Execute = %q, want %q", got, "silent completed")
	}
}

func TestWaitFor(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (string, error) { return "ok", nil }
	for _, tool := range []*Tool{
		{Name: "slow", VisualImpact: true, Wait: 2 * time.Second, Handler: noop},
		{Name: "visual", VisualImpact: true, Handler: noop},
		{Name: "passive", Handler: noop},
	} {
		if err := r.Register(tool); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		name string
		want time.Duration
	}{
		{"slow", 2 * time.Second},
		{"visual", DefaultWait},
		{"passive", 0},
		{"unknown", 0},
	}
	for _, tc := range cases {
		if got := r.WaitFor(tc.name); got != tc.want {
			t.Errorf("WaitFor(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}

	if !r.IsVisualImpact("visual") {
		t.Error("IsVisualImpact(visual) should be true")
	}
	if r.IsVisualImpact("passive") || r.IsVisualImpact("unknown") {
		t.Error("passive and unknown tools should not report visual impact")
	}
}

func TestNamesAndSpecificationsSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zebra", "alpha", "mango"} {
		if err := r.Register(echoTool(name)); err != nil {
			t.Fatal(err)
		}
	}

	names := r.Names()
	want := []string{"alpha", "mango", "zebra"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("Names = %v, want %v", names, want)
		}
	}

	specs := r.Specifications()
	if len(specs) != 3 {
		t.Fatalf("Specifications returned %d specs, want 3", len(specs))
	}
	for i, n := range want {
		if specs[i].Name != n {
			t.Fatalf("Specifications[%d].Name = %q, want %q", i, specs[i].Name, n)
		}
	}
}

func TestChangeListeners(t *testing.T) {
	r := NewRegistry()
	var added, removed []string
	r.OnChange(func(a, rm []string) {
		added = append(added, a...)
		removed = append(removed, rm...)
	})

	if err := r.Register(echoTool("first")); err != nil {
		t.Fatal(err)
	}
	if len(added) != 1 || added[0] != "first" {
		t.Errorf("added = %v, want [first]", added)
	}

	r.Unregister("first")
	if len(removed) != 1 || removed[0] != "first" {
		t.Errorf("removed = %v, want [first]", removed)
	}

	// Unregistering an unknown name stays silent.
	r.Unregister("ghost")
	if len(removed) != 1 {
		t.Errorf("unknown unregister should not notify, removed = %v", removed)
	}

	if _, ok := r.Get("first"); ok {
		t.Error("tool should be gone after Unregister")
	}
}
