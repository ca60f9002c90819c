package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"assistant-server/internal/domain/agent"
	"assistant-server/internal/domain/llm"
	"assistant-server/internal/domain/tool"
)

// mockProvider scripts chat completion responses.
type mockProvider struct {
	responses []*llm.ChatCompletionResponse
	err       error
	calls     int
	requests  []llm.ChatCompletionRequest
}

func (m *mockProvider) CreateChatCompletion(_ context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.calls >= len(m.responses) {
		return nil, errors.New("mock provider exhausted")
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func (m *mockProvider) CreateChatCompletionStream(context.Context, llm.ChatCompletionRequest) (llm.Stream, error) {
	return nil, errors.New("not implemented")
}

// staticTool returns a fixed output, or an error.
type staticTool struct {
	name   string
	output string
	err    error
}

func (s *staticTool) Name() string                      { return s.name }
func (s *staticTool) Description() string               { return "static" }
func (s *staticTool) ParametersSchema() ([]byte, error) { return []byte(`{"type":"object"}`), nil }
func (s *staticTool) Invoke(context.Context, []byte) (string, error) {
	return s.output, s.err
}

func textResponse(content string) *llm.ChatCompletionResponse {
	return &llm.ChatCompletionResponse{
		Choices: []llm.ChatCompletionChoice{{
			Message:      llm.ChatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
	}
}

func toolCallResponse(calls ...llm.ToolCall) *llm.ChatCompletionResponse {
	return &llm.ChatCompletionResponse{
		Choices: []llm.ChatCompletionChoice{{
			Message:      llm.ChatMessage{Role: "assistant", ToolCalls: calls},
			FinishReason: "tool_calls",
		}},
	}
}

func newState() *agent.State {
	return &agent.State{
		Input:        llm.ChatMessage{Role: "user", Content: "hello"},
		Instructions: "be helpful",
		Model:        "gpt-4o-mini",
	}
}

func newExecutor(t *testing.T, provider llm.Provider, tools ...tool.Tool) *agent.Executor {
	t.Helper()
	registry := tool.NewRegistry(zerolog.Nop())
	for _, tl := range tools {
		if err := registry.Register(tl); err != nil {
			t.Fatalf("register tool: %v", err)
		}
	}
	return agent.NewExecutor(provider, registry, 0, zerolog.Nop())
}

func noObserve(context.Context, *agent.State) error { return nil }

func TestExecutor_FinishOnPlainResponse(t *testing.T) {
	provider := &mockProvider{responses: []*llm.ChatCompletionResponse{textResponse("hi there")}}
	exec := newExecutor(t, provider)

	state := newState()
	var observed int
	err := exec.Stream(context.Background(), state, nil, func(context.Context, *agent.State) error {
		observed++
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	if !state.Finished() {
		t.Fatal("state must be finished")
	}
	finish := state.LastStep().Thought.Finish
	if finish.Response != "hi there" {
		t.Errorf("response = %q", finish.Response)
	}
	if observed != 1 {
		t.Errorf("observe called %d times, want 1", observed)
	}
}

func TestExecutor_ResolvesServerSideTools(t *testing.T) {
	provider := &mockProvider{responses: []*llm.ChatCompletionResponse{
		toolCallResponse(llm.ToolCall{
			ID: "call_1", Type: "function",
			Function: llm.ToolFunction{Name: "lookup", Arguments: []byte(`{"q":"go"}`)},
		}),
		textResponse("the answer"),
	}}
	exec := newExecutor(t, provider, &staticTool{name: "lookup", output: "result text"})

	state := newState()
	if err := exec.Stream(context.Background(), state, nil, noObserve); err != nil {
		t.Fatalf("stream: %v", err)
	}

	if len(state.PreviousSteps) != 3 {
		t.Fatalf("expected continuation, observation, finish; got %d steps", len(state.PreviousSteps))
	}
	obs := state.PreviousSteps[1].Observation
	if obs == nil || len(obs.ToolMessages) != 1 {
		t.Fatal("missing observation")
	}
	if obs.ToolMessages[0].Content != "result text" || obs.ToolMessages[0].ToolCallID != "call_1" {
		t.Errorf("unexpected tool message %+v", obs.ToolMessages[0])
	}
	if !state.Finished() {
		t.Error("state must be finished")
	}

	// The second completion call must carry the tool exchange.
	second := provider.requests[1]
	var sawToolMessage bool
	for _, m := range second.Messages {
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			sawToolMessage = true
		}
	}
	if !sawToolMessage {
		t.Error("tool output not rendered into the follow-up request")
	}
}

func TestExecutor_ToolErrorBecomesOutput(t *testing.T) {
	provider := &mockProvider{responses: []*llm.ChatCompletionResponse{
		toolCallResponse(llm.ToolCall{
			ID: "call_1", Type: "function",
			Function: llm.ToolFunction{Name: "flaky", Arguments: []byte(`{}`)},
		}),
		textResponse("recovered"),
	}}
	exec := newExecutor(t, provider, &staticTool{name: "flaky", err: errors.New("backend down")})

	state := newState()
	if err := exec.Stream(context.Background(), state, nil, noObserve); err != nil {
		t.Fatalf("tool errors must not fail the loop: %v", err)
	}

	obs := state.PreviousSteps[1].Observation
	if obs == nil {
		t.Fatal("missing observation")
	}
	if !strings.HasPrefix(obs.ToolMessages[0].Content, "error:") {
		t.Errorf("tool error not surfaced as output: %q", obs.ToolMessages[0].Content)
	}
}

func TestExecutor_PausesOnClientTools(t *testing.T) {
	provider := &mockProvider{responses: []*llm.ChatCompletionResponse{
		toolCallResponse(
			llm.ToolCall{ID: "call_1", Type: "function",
				Function: llm.ToolFunction{Name: "lookup", Arguments: []byte(`{}`)}},
			llm.ToolCall{ID: "call_2", Type: "function",
				Function: llm.ToolFunction{Name: "client_only", Arguments: []byte(`{}`)}},
		),
	}}
	exec := newExecutor(t, provider, &staticTool{name: "lookup", output: "resolved"})

	state := newState()
	if err := exec.Stream(context.Background(), state, nil, noObserve); err != nil {
		t.Fatalf("stream: %v", err)
	}

	last := state.LastStep()
	if last.Thought == nil || last.Thought.Pause == nil {
		t.Fatal("expected a pause")
	}
	pause := last.Thought.Pause
	if len(pause.Message.ToolCalls) != 2 {
		t.Errorf("pause must carry all calls, got %d", len(pause.Message.ToolCalls))
	}
	if len(pause.Completed) != 1 || pause.Completed[0].ToolCallID != "call_1" {
		t.Errorf("resolved subset wrong: %+v", pause.Completed)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
}

func TestExecutor_TrailingPauseShortCircuits(t *testing.T) {
	provider := &mockProvider{}
	exec := newExecutor(t, provider)

	state := newState()
	state.Append(agent.Step{Thought: &agent.Thought{Pause: &agent.Pause{
		Message: llm.ChatMessage{Role: "assistant"},
	}}})

	if err := exec.Stream(context.Background(), state, nil, noObserve); err != nil {
		t.Fatalf("stream: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider must not be called while paused, got %d calls", provider.calls)
	}
}

func TestExecutor_EarlyStop(t *testing.T) {
	provider := &mockProvider{responses: []*llm.ChatCompletionResponse{textResponse("never sent")}}
	exec := newExecutor(t, provider)

	state := newState()
	earlyStop := func(context.Context) *agent.Finish {
		return &agent.Finish{IsCancelled: true}
	}
	var observed int
	err := exec.Stream(context.Background(), state, earlyStop, func(context.Context, *agent.State) error {
		observed++
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	if provider.calls != 0 {
		t.Error("early stop must fire before the completion call")
	}
	finish := state.LastStep().Thought.Finish
	if finish == nil || !finish.IsCancelled {
		t.Errorf("expected cancelled finish, got %+v", finish)
	}
	if observed != 1 {
		t.Errorf("observe called %d times, want 1", observed)
	}
}

func TestExecutor_DuplicateToolCallIDsDropped(t *testing.T) {
	provider := &mockProvider{responses: []*llm.ChatCompletionResponse{
		toolCallResponse(
			llm.ToolCall{ID: "call_1", Type: "function",
				Function: llm.ToolFunction{Name: "lookup", Arguments: []byte(`{"q":"a"}`)}},
			llm.ToolCall{ID: "call_1", Type: "function",
				Function: llm.ToolFunction{Name: "lookup", Arguments: []byte(`{"q":"b"}`)}},
		),
		textResponse("done"),
	}}
	exec := newExecutor(t, provider, &staticTool{name: "lookup", output: "v"})

	state := newState()
	if err := exec.Stream(context.Background(), state, nil, noObserve); err != nil {
		t.Fatalf("stream: %v", err)
	}

	cont := state.PreviousSteps[0].Thought.Continuation
	if len(cont.Message.ToolCalls) != 1 {
		t.Errorf("duplicate call id kept: %d calls", len(cont.Message.ToolCalls))
	}
}

func TestExecutor_MaxStepsExceeded(t *testing.T) {
	// The model keeps asking for the same tool forever.
	looping := toolCallResponse(llm.ToolCall{
		ID: "call_1", Type: "function",
		Function: llm.ToolFunction{Name: "lookup", Arguments: []byte(`{}`)},
	})
	provider := &mockProvider{responses: []*llm.ChatCompletionResponse{
		looping, looping, looping, looping, looping,
	}}
	registry := tool.NewRegistry(zerolog.Nop())
	if err := registry.Register(&staticTool{name: "lookup", output: "v"}); err != nil {
		t.Fatal(err)
	}
	exec := agent.NewExecutor(provider, registry, 3, zerolog.Nop())

	err := exec.Stream(context.Background(), newState(), nil, noObserve)
	if err == nil {
		t.Fatal("expected max steps error")
	}
}

func TestExecutor_ObserveErrorAborts(t *testing.T) {
	provider := &mockProvider{responses: []*llm.ChatCompletionResponse{textResponse("x")}}
	exec := newExecutor(t, provider)

	boom := errors.New("persist failed")
	err := exec.Stream(context.Background(), newState(), nil, func(context.Context, *agent.State) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected observer error, got %v", err)
	}
}
