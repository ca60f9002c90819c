package agent

import (
	"errors"
	"fmt"
	"strings"

	"assistant-server/internal/domain/llm"
	"assistant-server/internal/domain/run"
)

// ErrNoUserMessage is returned when the thread holds no user message to use
// as the loop input.
var ErrNoUserMessage = errors.New("no user message in thread")

// ErrInconsistentState is returned when the persisted steps contradict the
// run status, which indicates corruption rather than a transient race.
var ErrInconsistentState = errors.New("inconsistent run state")

// MessageTextFunc resolves the text of a thread message by public id.
type MessageTextFunc func(messageID string) (string, error)

// ReconstructInput bundles everything reconstruction reads. Steps must be
// in ascending creation order; the caller pages them out completely.
type ReconstructInput struct {
	Run               *run.Run
	Steps             []*run.Step
	LatestUserMessage string
	MessageText       MessageTextFunc
	FunctionTools     []llm.ToolDefinition
}

// Reconstruct rebuilds agent state from durable records. It is a pure
// mapping: the same records always produce the same state, so a redelivered
// task resumes exactly where the previous worker left off.
func Reconstruct(in ReconstructInput) (*State, error) {
	r := in.Run
	if r.Status == run.StatusCancelling || r.Status == run.StatusInProgress {
		return nil, fmt.Errorf("%w: run %s has live status %s", ErrInconsistentState, r.PublicID, r.Status)
	}
	if strings.TrimSpace(in.LatestUserMessage) == "" {
		return nil, ErrNoUserMessage
	}

	state := &State{
		Input:         llm.ChatMessage{Role: "user", Content: in.LatestUserMessage},
		Instructions:  r.Instructions,
		Model:         r.Model,
		Temperature:   r.Temperature,
		TopP:          r.TopP,
		FunctionTools: in.FunctionTools,
	}

	n := len(in.Steps)
	for i, step := range in.Steps {
		last := i == n-1
		switch step.Type {
		case run.StepTypeToolCalls:
			if err := replayToolCallsStep(state, in, step, last); err != nil {
				return nil, err
			}
		case run.StepTypeMessageCreation:
			// Intermediate messages are folded into the following tool
			// calls step; only the closing response becomes a step.
			if last && r.Status == run.StatusCompleted {
				text, err := resolveMessageText(in, step)
				if err != nil {
					return nil, err
				}
				state.Append(Step{Thought: &Thought{Finish: &Finish{Response: text}}})
			}
		default:
			return nil, fmt.Errorf("%w: unknown step type %q", ErrInconsistentState, step.Type)
		}
	}
	return state, nil
}

func replayToolCallsStep(state *State, in ReconstructInput, step *run.Step, last bool) error {
	details := step.StepDetails.ToolCalls
	if len(details) == 0 {
		return fmt.Errorf("%w: tool_calls step %s has no tool calls", ErrInconsistentState, step.PublicID)
	}

	continuation := llm.ChatMessage{Role: "assistant"}
	for _, d := range details {
		continuation.ToolCalls = append(continuation.ToolCalls, llm.ToolCall{
			ID:   d.ID,
			Type: "function",
			Function: llm.ToolFunction{
				Name:      d.Function.Name,
				Arguments: []byte(d.Function.Arguments),
			},
		})
	}
	// A message created in the same iteration precedes its tool calls step;
	// fold its text into the continuation message.
	if text, ok := precedingMessageText(in, step); ok {
		continuation.Content = text
	}
	state.Append(Step{Thought: &Thought{Continuation: &Continuation{Message: continuation}}})

	switch step.Status {
	case run.StepStatusCompleted:
		obs := &Observation{}
		for _, d := range details {
			obs.ToolMessages = append(obs.ToolMessages, llm.ChatMessage{
				Role:       "tool",
				Content:    d.Function.Output,
				ToolCallID: d.ID,
			})
		}
		state.Append(Step{Observation: obs})

	case run.StepStatusInProgress:
		if !last {
			return fmt.Errorf("%w: in_progress step %s is not the last step", ErrInconsistentState, step.PublicID)
		}
		if in.Run.Status != run.StatusRequiresAction {
			return fmt.Errorf("%w: in_progress step with run status %s", ErrInconsistentState, in.Run.Status)
		}
		pause := &Pause{Message: continuation}
		for _, d := range details {
			if strings.TrimSpace(d.Function.Output) == "" {
				continue
			}
			pause.Completed = append(pause.Completed, llm.ChatMessage{
				Role:       "tool",
				Content:    d.Function.Output,
				ToolCallID: d.ID,
			})
		}
		state.Append(Step{Thought: &Thought{Pause: pause}})

	case run.StepStatusCancelled, run.StepStatusExpired, run.StepStatusFailed:
		if !last {
			return fmt.Errorf("%w: terminal step %s is not the last step", ErrInconsistentState, step.PublicID)
		}
		if expected := terminalRunStatus(step.Status); in.Run.Status != expected {
			return fmt.Errorf("%w: %s step with run status %s", ErrInconsistentState, step.Status, in.Run.Status)
		}
		finish := &Finish{
			IsCancelled: step.Status == run.StepStatusCancelled,
			IsExpired:   step.Status == run.StepStatusExpired,
			IsFailed:    step.Status == run.StepStatusFailed,
		}
		if step.LastError != nil {
			finish.ErrorType = step.LastError.Type
			finish.ErrorReason = step.LastError.Message
		}
		state.Append(Step{Thought: &Thought{Finish: finish}})

	default:
		return fmt.Errorf("%w: unknown step status %q", ErrInconsistentState, step.Status)
	}
	return nil
}

func terminalRunStatus(s run.StepStatus) run.Status {
	switch s {
	case run.StepStatusCancelled:
		return run.StatusCancelled
	case run.StepStatusExpired:
		return run.StatusExpired
	default:
		return run.StatusFailed
	}
}

func precedingMessageText(in ReconstructInput, step *run.Step) (string, bool) {
	var prev *run.Step
	for _, s := range in.Steps {
		if s.PublicID == step.PublicID {
			break
		}
		prev = s
	}
	if prev == nil || prev.Type != run.StepTypeMessageCreation {
		return "", false
	}
	text, err := resolveMessageText(in, prev)
	if err != nil {
		return "", false
	}
	return text, true
}

func resolveMessageText(in ReconstructInput, step *run.Step) (string, error) {
	if step.StepDetails.MessageCreation == nil {
		return "", fmt.Errorf("%w: message_creation step %s has no message id", ErrInconsistentState, step.PublicID)
	}
	if in.MessageText == nil {
		return "", fmt.Errorf("%w: no message resolver provided", ErrInconsistentState)
	}
	return in.MessageText(step.StepDetails.MessageCreation.MessageID)
}
