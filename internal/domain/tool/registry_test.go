package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"assistant-server/internal/domain/tool"
)

// fakeTool is a configurable tool for registry tests.
type fakeTool struct {
	name       string
	schemaFunc func() ([]byte, error)
	invokeFunc func(ctx context.Context, arguments []byte) (string, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool" }

func (f *fakeTool) ParametersSchema() ([]byte, error) {
	if f.schemaFunc != nil {
		return f.schemaFunc()
	}
	return []byte(`{"type":"object"}`), nil
}

func (f *fakeTool) Invoke(ctx context.Context, arguments []byte) (string, error) {
	if f.invokeFunc != nil {
		return f.invokeFunc(ctx, arguments)
	}
	return "ok", nil
}

func newRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	return tool.NewRegistry(zerolog.Nop())
}

func TestRegistry_Register(t *testing.T) {
	r := newRegistry(t)

	if err := r.Register(&fakeTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.Has("echo") {
		t.Error("expected registry to know echo")
	}

	if err := r.Register(&fakeTool{name: "echo"}); err == nil {
		t.Error("duplicate registration must fail")
	}
	if err := r.Register(&fakeTool{name: ""}); err == nil {
		t.Error("empty name must fail")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := newRegistry(t)
	if err := r.Register(&fakeTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	r.Unregister("echo")
	if r.Has("echo") {
		t.Error("echo should be gone")
	}

	// Unknown names are a no-op.
	r.Unregister("never-registered")
}

func TestRegistry_Invoke(t *testing.T) {
	r := newRegistry(t)
	if err := r.Register(&fakeTool{
		name: "echo",
		invokeFunc: func(_ context.Context, arguments []byte) (string, error) {
			return string(arguments), nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := r.Invoke(context.Background(), "echo", []byte(`{"v":1}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != `{"v":1}` {
		t.Errorf("unexpected output %q", out)
	}

	_, err = r.Invoke(context.Background(), "missing", nil)
	if !errors.Is(err, tool.ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistry_ListSchemas(t *testing.T) {
	r := newRegistry(t)
	// Registered out of name order: the listing must not depend on it.
	for _, name := range []string{"gamma", "alpha", "beta"} {
		if err := r.Register(&fakeTool{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	defs, err := r.ListSchemas()
	if err != nil {
		t.Fatalf("list schemas: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	for i, want := range []string{"alpha", "beta", "gamma"} {
		if defs[i].Type != "function" {
			t.Errorf("definition type = %q, want function", defs[i].Type)
		}
		if defs[i].Function.Name != want {
			t.Errorf("definition %d = %q, want %q (sorted by name)", i, defs[i].Function.Name, want)
		}
	}

	broken := &fakeTool{
		name:       "broken",
		schemaFunc: func() ([]byte, error) { return nil, errors.New("boom") },
	}
	if err := r.Register(broken); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.ListSchemas(); err == nil {
		t.Error("schema failure must surface")
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := newRegistry(t)
	if err := tool.RegisterBuiltins(r); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	for _, name := range []string{"get_current_time", "calculator"} {
		if !r.Has(name) {
			t.Errorf("expected builtin %q", name)
		}
	}

	def, err := r.Schema("calculator")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(def.Function.Parameters, &schema); err != nil {
		t.Fatalf("parameters are not valid JSON: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want object", schema["type"])
	}
}
