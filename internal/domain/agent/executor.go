package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"assistant-server/internal/domain/llm"
	"assistant-server/internal/domain/tool"
)

// EarlyStop is polled once per loop iteration, before each completion call.
// A non-nil Finish aborts the loop with that outcome.
type EarlyStop func(ctx context.Context) *Finish

// Observe is invoked after every step appended to the state. Observers
// persist the transition; an error aborts the loop.
type Observe func(ctx context.Context, state *State) error

// DefaultMaxSteps bounds the agent loop against models that keep calling
// tools without converging.
const DefaultMaxSteps = 10

// Executor drives the tool-calling agent loop over an OpenAI-compatible
// chat completion API.
type Executor struct {
	provider llm.Provider
	registry *tool.Registry
	maxSteps int
	log      zerolog.Logger
}

// NewExecutor creates an executor. maxSteps <= 0 selects DefaultMaxSteps.
func NewExecutor(provider llm.Provider, registry *tool.Registry, maxSteps int, log zerolog.Logger) *Executor {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Executor{
		provider: provider,
		registry: registry,
		maxSteps: maxSteps,
		log:      log.With().Str("component", "agent-executor").Logger(),
	}
}

// Stream advances the state until a finish thought, a pause on client
// executed tool calls, or an early stop. Every appended step is reported
// through observe before the loop continues.
func (e *Executor) Stream(ctx context.Context, state *State, earlyStop EarlyStop, observe Observe) error {
	for i := 0; i < e.maxSteps; i++ {
		if state.Finished() {
			return nil
		}
		if last := state.LastStep(); last != nil && last.Thought != nil && last.Thought.Pause != nil {
			// Still waiting on client executed tool calls.
			return nil
		}

		if earlyStop != nil {
			if finish := earlyStop(ctx); finish != nil {
				state.Append(Step{Thought: &Thought{Finish: finish}})
				return observe(ctx, state)
			}
		}

		step, err := e.next(ctx, state)
		if err != nil {
			return err
		}

		appended := state.Append(step)
		if err := observe(ctx, state); err != nil {
			return err
		}

		if t := appended.Thought; t != nil {
			if t.Finish != nil {
				return nil
			}
			if t.Pause != nil {
				// Suspended on client executed tool calls.
				return nil
			}
			if t.Continuation != nil && len(t.Continuation.Message.ToolCalls) > 0 {
				resolution, err := e.resolve(ctx, t.Continuation.Message.ToolCalls)
				if err != nil {
					return err
				}
				state.Append(resolution)
				if err := observe(ctx, state); err != nil {
					return err
				}
				if resolution.Thought != nil && resolution.Thought.Pause != nil {
					return nil
				}
			}
		}
	}
	return fmt.Errorf("agent loop exceeded %d steps without finishing", e.maxSteps)
}

// next performs one completion call and classifies the response.
func (e *Executor) next(ctx context.Context, state *State) (Step, error) {
	req := llm.ChatCompletionRequest{
		Model:       state.Model,
		Messages:    state.RenderMessages(),
		Tools:       state.FunctionTools,
		Temperature: state.Temperature,
		TopP:        state.TopP,
	}

	resp, err := e.provider.CreateChatCompletion(ctx, req)
	if err != nil {
		return Step{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Step{}, fmt.Errorf("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	msg.Role = "assistant"
	msg.ToolCalls = dedupeToolCalls(msg.ToolCalls, e.log)

	if len(msg.ToolCalls) > 0 {
		return Step{Thought: &Thought{Continuation: &Continuation{Message: msg}}}, nil
	}
	return Step{Thought: &Thought{Finish: &Finish{Response: msg.Content}}}, nil
}

// resolve executes the server-side tool calls of a continuation. It returns
// an observation when every call resolved locally, or a pause carrying the
// resolved subset when at least one call must go back to the client.
func (e *Executor) resolve(ctx context.Context, calls []llm.ToolCall) (Step, error) {
	var completed []llm.ChatMessage
	clientCalls := false

	for _, call := range calls {
		name := call.Function.Name
		if !e.registry.Has(name) {
			clientCalls = true
			continue
		}

		output, err := e.registry.Invoke(ctx, name, call.Function.Arguments)
		if err != nil {
			// Tool errors are model feedback, not run failures.
			e.log.Warn().Err(err).Str("tool", name).Str("tool_call_id", call.ID).Msg("tool invocation failed")
			output = fmt.Sprintf("error: %s", err)
		}
		completed = append(completed, llm.ChatMessage{
			Role:       "tool",
			Content:    output,
			ToolCallID: call.ID,
		})
	}

	if clientCalls {
		return Step{Thought: &Thought{Pause: &Pause{
			Message:   llm.ChatMessage{Role: "assistant", ToolCalls: calls},
			Completed: completed,
		}}}, nil
	}
	return Step{Observation: &Observation{ToolMessages: completed}}, nil
}

// dedupeToolCalls drops repeated tool call IDs, keeping the first
// occurrence.
func dedupeToolCalls(calls []llm.ToolCall, log zerolog.Logger) []llm.ToolCall {
	if len(calls) < 2 {
		return calls
	}
	seen := make(map[string]bool, len(calls))
	out := calls[:0]
	for _, call := range calls {
		if seen[call.ID] {
			log.Warn().Str("tool_call_id", call.ID).Msg("duplicate tool call id from model, keeping first")
			continue
		}
		seen[call.ID] = true
		out = append(out, call)
	}
	return out
}
