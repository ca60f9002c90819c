package agent_test

import (
	"errors"
	"fmt"
	"testing"

	"assistant-server/internal/domain/agent"
	"assistant-server/internal/domain/run"
)

func baseRun(status run.Status) *run.Run {
	return &run.Run{
		PublicID:     "run_1",
		ThreadID:     "thread_1",
		AssistantID:  "asst_1",
		Model:        "gpt-4o-mini",
		Instructions: "be helpful",
		Status:       status,
	}
}

func toolCallsStep(id string, status run.StepStatus, calls ...run.ToolCallDetail) *run.Step {
	return &run.Step{
		PublicID: id,
		RunID:    "run_1",
		Type:     run.StepTypeToolCalls,
		Status:   status,
		StepDetails: run.StepDetails{
			Type:      run.StepTypeToolCalls,
			ToolCalls: calls,
		},
	}
}

func messageStep(id, messageID string) *run.Step {
	return &run.Step{
		PublicID: id,
		RunID:    "run_1",
		Type:     run.StepTypeMessageCreation,
		Status:   run.StepStatusCompleted,
		StepDetails: run.StepDetails{
			Type:            run.StepTypeMessageCreation,
			MessageCreation: &run.MessageCreationDetails{MessageID: messageID},
		},
	}
}

func call(id, name, args, output string) run.ToolCallDetail {
	return run.ToolCallDetail{
		ID:       id,
		Type:     "function",
		Function: run.FunctionCallDetail{Name: name, Arguments: args, Output: output},
	}
}

func messageTexts(texts map[string]string) agent.MessageTextFunc {
	return func(messageID string) (string, error) {
		text, ok := texts[messageID]
		if !ok {
			return "", fmt.Errorf("message %s not found", messageID)
		}
		return text, nil
	}
}

func TestReconstruct_FreshRun(t *testing.T) {
	state, err := agent.Reconstruct(agent.ReconstructInput{
		Run:               baseRun(run.StatusQueued),
		LatestUserMessage: "hello",
	})
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if len(state.PreviousSteps) != 0 {
		t.Errorf("fresh run must have no steps, got %d", len(state.PreviousSteps))
	}
	if state.Input.Content != "hello" || state.Input.Role != "user" {
		t.Errorf("unexpected input %+v", state.Input)
	}
	if state.Model != "gpt-4o-mini" || state.Instructions != "be helpful" {
		t.Errorf("run settings not carried over")
	}
}

func TestReconstruct_RejectsBlankUserMessage(t *testing.T) {
	_, err := agent.Reconstruct(agent.ReconstructInput{
		Run:               baseRun(run.StatusQueued),
		LatestUserMessage: "   ",
	})
	if !errors.Is(err, agent.ErrNoUserMessage) {
		t.Errorf("expected ErrNoUserMessage, got %v", err)
	}
}

func TestReconstruct_RejectsLiveStatuses(t *testing.T) {
	for _, status := range []run.Status{run.StatusInProgress, run.StatusCancelling} {
		_, err := agent.Reconstruct(agent.ReconstructInput{
			Run:               baseRun(status),
			LatestUserMessage: "hello",
		})
		if !errors.Is(err, agent.ErrInconsistentState) {
			t.Errorf("status %s: expected ErrInconsistentState, got %v", status, err)
		}
	}
}

func TestReconstruct_CompletedToolCallsStep(t *testing.T) {
	state, err := agent.Reconstruct(agent.ReconstructInput{
		Run:               baseRun(run.StatusQueued),
		LatestUserMessage: "hello",
		Steps: []*run.Step{
			toolCallsStep("step_1", run.StepStatusCompleted,
				call("call_1", "lookup", `{"q":"go"}`, "found it")),
		},
	})
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	if len(state.PreviousSteps) != 2 {
		t.Fatalf("expected continuation + observation, got %d steps", len(state.PreviousSteps))
	}
	cont := state.PreviousSteps[0].Thought.Continuation
	if cont == nil || len(cont.Message.ToolCalls) != 1 || cont.Message.ToolCalls[0].ID != "call_1" {
		t.Fatalf("continuation wrong: %+v", state.PreviousSteps[0])
	}
	obs := state.PreviousSteps[1].Observation
	if obs == nil || len(obs.ToolMessages) != 1 {
		t.Fatalf("observation wrong: %+v", state.PreviousSteps[1])
	}
	if obs.ToolMessages[0].Content != "found it" || obs.ToolMessages[0].ToolCallID != "call_1" {
		t.Errorf("tool message wrong: %+v", obs.ToolMessages[0])
	}
}

func TestReconstruct_FoldsPrecedingMessageIntoContinuation(t *testing.T) {
	state, err := agent.Reconstruct(agent.ReconstructInput{
		Run:               baseRun(run.StatusQueued),
		LatestUserMessage: "hello",
		MessageText:       messageTexts(map[string]string{"msg_1": "let me check"}),
		Steps: []*run.Step{
			messageStep("step_1", "msg_1"),
			toolCallsStep("step_2", run.StepStatusCompleted,
				call("call_1", "lookup", `{}`, "ok")),
		},
	})
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	cont := state.PreviousSteps[0].Thought.Continuation
	if cont.Message.Content != "let me check" {
		t.Errorf("preceding message not folded: %q", cont.Message.Content)
	}
}

func TestReconstruct_SuspendedRun(t *testing.T) {
	state, err := agent.Reconstruct(agent.ReconstructInput{
		Run:               baseRun(run.StatusRequiresAction),
		LatestUserMessage: "hello",
		Steps: []*run.Step{
			toolCallsStep("step_1", run.StepStatusInProgress,
				call("call_1", "calculator", `{"operation":"add","a":1,"b":2}`, "3"),
				call("call_2", "client_tool", `{}`, "")),
		},
	})
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	last := state.LastStep()
	if last.Thought == nil || last.Thought.Pause == nil {
		t.Fatalf("expected trailing pause, got %+v", last)
	}
	pause := last.Thought.Pause
	if len(pause.Message.ToolCalls) != 2 {
		t.Errorf("pause must carry every call, got %d", len(pause.Message.ToolCalls))
	}
	if len(pause.Completed) != 1 || pause.Completed[0].ToolCallID != "call_1" {
		t.Errorf("only resolved outputs belong in Completed: %+v", pause.Completed)
	}
}

func TestReconstruct_InProgressStepMustBeLast(t *testing.T) {
	_, err := agent.Reconstruct(agent.ReconstructInput{
		Run:               baseRun(run.StatusRequiresAction),
		LatestUserMessage: "hello",
		Steps: []*run.Step{
			toolCallsStep("step_1", run.StepStatusInProgress, call("call_1", "a", `{}`, "")),
			toolCallsStep("step_2", run.StepStatusCompleted, call("call_2", "b", `{}`, "x")),
		},
	})
	if !errors.Is(err, agent.ErrInconsistentState) {
		t.Errorf("expected ErrInconsistentState, got %v", err)
	}
}

func TestReconstruct_InProgressStepNeedsRequiresAction(t *testing.T) {
	_, err := agent.Reconstruct(agent.ReconstructInput{
		Run:               baseRun(run.StatusQueued),
		LatestUserMessage: "hello",
		Steps: []*run.Step{
			toolCallsStep("step_1", run.StepStatusInProgress, call("call_1", "a", `{}`, "")),
		},
	})
	if !errors.Is(err, agent.ErrInconsistentState) {
		t.Errorf("expected ErrInconsistentState, got %v", err)
	}
}

func TestReconstruct_TerminalStep(t *testing.T) {
	r := baseRun(run.StatusFailed)
	state, err := agent.Reconstruct(agent.ReconstructInput{
		Run:               r,
		LatestUserMessage: "hello",
		Steps: []*run.Step{
			{
				PublicID: "step_1",
				RunID:    "run_1",
				Type:     run.StepTypeToolCalls,
				Status:   run.StepStatusFailed,
				StepDetails: run.StepDetails{
					Type:      run.StepTypeToolCalls,
					ToolCalls: []run.ToolCallDetail{call("call_1", "a", `{}`, "")},
				},
				LastError: &run.LastError{Type: run.ErrorTypeLLM, Message: "upstream 500"},
			},
		},
	})
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	finish := state.LastStep().Thought.Finish
	if finish == nil || !finish.IsFailed {
		t.Fatalf("expected failed finish, got %+v", state.LastStep())
	}
	if finish.ErrorType != run.ErrorTypeLLM || finish.ErrorReason != "upstream 500" {
		t.Errorf("error detail lost: %+v", finish)
	}
}

func TestReconstruct_TerminalStepMismatchedRunStatus(t *testing.T) {
	_, err := agent.Reconstruct(agent.ReconstructInput{
		Run:               baseRun(run.StatusQueued),
		LatestUserMessage: "hello",
		Steps: []*run.Step{
			toolCallsStep("step_1", run.StepStatusCancelled, call("call_1", "a", `{}`, "")),
		},
	})
	if !errors.Is(err, agent.ErrInconsistentState) {
		t.Errorf("expected ErrInconsistentState, got %v", err)
	}
}

func TestReconstruct_CompletedRunEndsInResponse(t *testing.T) {
	state, err := agent.Reconstruct(agent.ReconstructInput{
		Run:               baseRun(run.StatusCompleted),
		LatestUserMessage: "hello",
		MessageText:       messageTexts(map[string]string{"msg_9": "final answer"}),
		Steps: []*run.Step{
			toolCallsStep("step_1", run.StepStatusCompleted, call("call_1", "a", `{}`, "ok")),
			messageStep("step_2", "msg_9"),
		},
	})
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	finish := state.LastStep().Thought.Finish
	if finish == nil || finish.Response != "final answer" {
		t.Errorf("expected finish with final answer, got %+v", state.LastStep())
	}
}

func TestReconstruct_ToolCallsStepWithoutCalls(t *testing.T) {
	_, err := agent.Reconstruct(agent.ReconstructInput{
		Run:               baseRun(run.StatusQueued),
		LatestUserMessage: "hello",
		Steps:             []*run.Step{toolCallsStep("step_1", run.StepStatusCompleted)},
	})
	if !errors.Is(err, agent.ErrInconsistentState) {
		t.Errorf("expected ErrInconsistentState, got %v", err)
	}
}
