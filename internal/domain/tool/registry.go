// Package tool provides the registry of server-side callable tools and the
// built-in toolkit. Function tools declared on an assistant but absent from
// the registry are client-executed and surface through requires_action.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"assistant-server/internal/domain/llm"
)

// Tool is one server-side callable function.
type Tool interface {
	Name() string
	Description() string
	// ParametersSchema returns the JSON Schema of the arguments object.
	ParametersSchema() ([]byte, error)
	// Invoke executes the tool with raw JSON arguments and returns the
	// output text handed back to the model.
	Invoke(ctx context.Context, arguments []byte) (string, error)
}

// ErrToolNotFound is returned by Invoke for unregistered tool names.
var ErrToolNotFound = errors.New("tool not found")

// Registry holds the tools a worker may execute on the model's behalf.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	log   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		log:   log.With().Str("component", "tool-registry").Logger(),
	}
}

// Register adds a tool. Registering a duplicate name is an error so a
// misconfigured toolkit fails at startup rather than shadowing silently.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if name == "" {
		return errors.New("tool name must not be empty")
	}
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.log.Info().Str("tool", name).Msg("registered tool")
	return nil
}

// Unregister removes a tool by name. Removing an unknown name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Has reports whether a tool name is server-side executable.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Schema returns the LLM-facing definition of one registered tool.
func (r *Registry) Schema(name string) (llm.ToolDefinition, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return llm.ToolDefinition{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return toDefinition(t)
}

// ListSchemas returns LLM-facing definitions for every registered tool,
// sorted by name so rendered requests are stable across calls.
func (r *Registry) ListSchemas() ([]llm.ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		def, err := toDefinition(r.tools[name])
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Invoke executes a registered tool. Malformed arguments are the tool's
// problem to report; the returned error is fed back to the model as the
// call's output rather than aborting the run.
func (r *Registry) Invoke(ctx context.Context, name string, arguments []byte) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t.Invoke(ctx, arguments)
}

func toDefinition(t Tool) (llm.ToolDefinition, error) {
	params, err := t.ParametersSchema()
	if err != nil {
		return llm.ToolDefinition{}, fmt.Errorf("schema for tool %q: %w", t.Name(), err)
	}
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		},
	}, nil
}
