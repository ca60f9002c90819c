package run_test

import (
	"testing"

	"assistant-server/internal/domain/run"
)

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   run.Status
		expected bool
	}{
		{"queued is not terminal", run.StatusQueued, false},
		{"in_progress is not terminal", run.StatusInProgress, false},
		{"requires_action is not terminal", run.StatusRequiresAction, false},
		{"cancelling is not terminal", run.StatusCancelling, false},
		{"completed is terminal", run.StatusCompleted, true},
		{"failed is terminal", run.StatusFailed, true},
		{"cancelled is terminal", run.StatusCancelled, true},
		{"expired is terminal", run.StatusExpired, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expected {
				t.Errorf("Status.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name     string
		from     run.Status
		to       run.Status
		expected bool
	}{
		{"queued to in_progress", run.StatusQueued, run.StatusInProgress, true},
		{"queued to cancelling", run.StatusQueued, run.StatusCancelling, true},
		{"queued to completed skips in_progress", run.StatusQueued, run.StatusCompleted, false},
		{"in_progress to requires_action", run.StatusInProgress, run.StatusRequiresAction, true},
		{"in_progress to completed", run.StatusInProgress, run.StatusCompleted, true},
		{"requires_action back to queued", run.StatusRequiresAction, run.StatusQueued, true},
		{"requires_action to in_progress", run.StatusRequiresAction, run.StatusInProgress, true},
		{"requires_action to completed", run.StatusRequiresAction, run.StatusCompleted, false},
		{"cancelling to cancelled", run.StatusCancelling, run.StatusCancelled, true},
		{"cancelling to completed", run.StatusCancelling, run.StatusCompleted, false},
		{"completed is final", run.StatusCompleted, run.StatusQueued, false},
		{"failed is final", run.StatusFailed, run.StatusQueued, false},
		{"cancelled is final", run.StatusCancelled, run.StatusCancelling, false},
		{"expired is final", run.StatusExpired, run.StatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.expected {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestStatus_TransitionTo(t *testing.T) {
	got, err := run.StatusQueued.TransitionTo(run.StatusInProgress)
	if err != nil {
		t.Fatalf("TransitionTo returned error: %v", err)
	}
	if got != run.StatusInProgress {
		t.Errorf("TransitionTo = %v, want %v", got, run.StatusInProgress)
	}

	got, err = run.StatusCompleted.TransitionTo(run.StatusQueued)
	if err != run.ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if got != run.StatusCompleted {
		t.Errorf("invalid transition must keep current status, got %v", got)
	}
}

func TestStepStatus_IsTerminal(t *testing.T) {
	if run.StepStatusInProgress.IsTerminal() {
		t.Error("in_progress step must not be terminal")
	}
	for _, s := range []run.StepStatus{
		run.StepStatusCompleted, run.StepStatusFailed, run.StepStatusCancelled, run.StepStatusExpired,
	} {
		if !s.IsTerminal() {
			t.Errorf("%s step must be terminal", s)
		}
	}
}

func TestStep_UnresolvedToolCalls(t *testing.T) {
	step := &run.Step{
		Type: run.StepTypeToolCalls,
		StepDetails: run.StepDetails{
			Type: run.StepTypeToolCalls,
			ToolCalls: []run.ToolCallDetail{
				{ID: "call_1", Function: run.FunctionCallDetail{Name: "lookup", Arguments: `{"q":"a"}`, Output: "done"}},
				{ID: "call_2", Function: run.FunctionCallDetail{Name: "lookup", Arguments: `{"q":"b"}`}},
				{ID: "call_3", Function: run.FunctionCallDetail{Name: "submit", Arguments: `{}`}},
			},
		},
	}

	unresolved := step.UnresolvedToolCalls()
	if len(unresolved) != 2 {
		t.Fatalf("expected 2 unresolved calls, got %d", len(unresolved))
	}
	if unresolved[0].ID != "call_2" || unresolved[1].ID != "call_3" {
		t.Errorf("unresolved calls out of order: %s, %s", unresolved[0].ID, unresolved[1].ID)
	}
	if unresolved[0].Function.Name != "lookup" {
		t.Errorf("unexpected function name %q", unresolved[0].Function.Name)
	}
}
