// Package agent implements the tool-calling agent loop and the
// reconstruction of its state from persisted run steps.
package agent

import (
	"assistant-server/internal/domain/llm"
)

// State is the full conversational state of one agent execution. It is
// rebuilt from durable records on every dispatch, never held in memory
// across suspensions.
type State struct {
	// Input is the user message that started the run.
	Input llm.ChatMessage

	Instructions string
	Model        string
	Temperature  *float64
	TopP         *float64

	// FunctionTools are the LLM-facing schemas advertised on this run,
	// deduplicated by name.
	FunctionTools []llm.ToolDefinition

	PreviousSteps []Step
}

// Step is one transition of the agent loop. Exactly one field is set.
type Step struct {
	Thought     *Thought
	Observation *Observation
}

// Thought is a model-driven transition. Exactly one field is set.
type Thought struct {
	Continuation *Continuation
	Pause        *Pause
	Finish       *Finish
}

// Continuation carries the assistant message produced by one completion
// call, possibly with tool calls attached.
type Continuation struct {
	Message llm.ChatMessage
}

// Pause suspends the loop on tool calls the server cannot execute itself.
// Completed holds tool messages for calls already resolved, server-side
// built-ins included.
type Pause struct {
	Message   llm.ChatMessage
	Completed []llm.ChatMessage
}

// Finish terminates the loop.
type Finish struct {
	Response    string
	IsFailed    bool
	IsCancelled bool
	IsExpired   bool
	ErrorType   string
	ErrorReason string
}

// Observation carries the tool messages produced by resolved tool calls.
type Observation struct {
	ToolMessages []llm.ChatMessage
}

// LastStep returns the most recent step, or nil for a fresh state.
func (s *State) LastStep() *Step {
	if len(s.PreviousSteps) == 0 {
		return nil
	}
	return &s.PreviousSteps[len(s.PreviousSteps)-1]
}

// Append adds a step and returns a pointer to the stored copy.
func (s *State) Append(step Step) *Step {
	s.PreviousSteps = append(s.PreviousSteps, step)
	return &s.PreviousSteps[len(s.PreviousSteps)-1]
}

// Finished reports whether the state ends in a finish thought.
func (s *State) Finished() bool {
	last := s.LastStep()
	return last != nil && last.Thought != nil && last.Thought.Finish != nil
}

// RenderMessages flattens the state into the chat history sent to the model.
func (s *State) RenderMessages() []llm.ChatMessage {
	var msgs []llm.ChatMessage
	if s.Instructions != "" {
		msgs = append(msgs, llm.ChatMessage{Role: "system", Content: s.Instructions})
	}
	msgs = append(msgs, s.Input)

	for i := range s.PreviousSteps {
		step := &s.PreviousSteps[i]
		switch {
		case step.Thought != nil && step.Thought.Continuation != nil:
			msgs = append(msgs, step.Thought.Continuation.Message)
		case step.Thought != nil && step.Thought.Pause != nil:
			msgs = append(msgs, step.Thought.Pause.Message)
			msgs = append(msgs, step.Thought.Pause.Completed...)
		case step.Thought != nil && step.Thought.Finish != nil:
			if step.Thought.Finish.Response != "" {
				msgs = append(msgs, llm.ChatMessage{Role: "assistant", Content: step.Thought.Finish.Response})
			}
		case step.Observation != nil:
			msgs = append(msgs, step.Observation.ToolMessages...)
		}
	}
	return msgs
}
