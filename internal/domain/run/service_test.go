package run_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"assistant-server/internal/domain/assistant"
	"assistant-server/internal/domain/llm"
	"assistant-server/internal/domain/message"
	"assistant-server/internal/domain/run"
	"assistant-server/internal/domain/thread"
	assistantrepo "assistant-server/internal/infrastructure/repository/assistant"
	messagerepo "assistant-server/internal/infrastructure/repository/message"
	runrepo "assistant-server/internal/infrastructure/repository/run"
	threadrepo "assistant-server/internal/infrastructure/repository/thread"
	"assistant-server/internal/scheduler"
	"assistant-server/internal/utils/idgen"
	"assistant-server/internal/utils/platformerrors"
)

// mockQueue records enqueued tasks and can be told to fail.
type mockQueue struct {
	tasks []scheduler.Task
	err   error
}

func (q *mockQueue) Enqueue(_ context.Context, task scheduler.Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

type serviceFixture struct {
	svc       run.Service
	runs      *runrepo.InMemoryRepository
	queue     *mockQueue
	assistant *assistant.Assistant
	threadID  string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	assistants := assistantrepo.NewInMemoryRepository()
	threads := threadrepo.NewInMemoryRepository()
	messages := messagerepo.NewInMemoryRepository()
	runs := runrepo.NewInMemoryRepository()
	queue := &mockQueue{}

	messageService := message.NewService(messages, threads, log)
	svc := run.NewService(runs, assistants, threads, messageService, queue, time.Hour, log)

	temp := 0.4
	asst := &assistant.Assistant{
		PublicID:     idgen.MustGenerate(idgen.PrefixAssistant),
		Object:       assistant.ObjectType,
		Model:        "gpt-4o-mini",
		Instructions: "assistant instructions",
		Temperature:  &temp,
		Tools: []assistant.Tool{{
			Type:     assistant.ToolTypeFunction,
			Function: &assistant.FunctionDefinition{Name: "lookup"},
		}},
	}
	require.NoError(t, assistants.Create(ctx, asst))

	th := &thread.Thread{
		PublicID: idgen.MustGenerate(idgen.PrefixThread),
		Object:   thread.ObjectType,
	}
	require.NoError(t, threads.Create(ctx, th))

	return &serviceFixture{
		svc:       svc,
		runs:      runs,
		queue:     queue,
		assistant: asst,
		threadID:  th.PublicID,
	}
}

func TestService_Create_InheritsFromAssistant(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.threadID, run.CreateParams{AssistantID: f.assistant.PublicID})
	require.NoError(t, err)

	require.Equal(t, run.StatusQueued, r.Status)
	require.Equal(t, "gpt-4o-mini", r.Model)
	require.Equal(t, "assistant instructions", r.Instructions)
	require.Len(t, r.Tools, 1)
	require.NotNil(t, r.Temperature)
	require.NotNil(t, r.ExpiresAt)

	require.Len(t, f.queue.tasks, 1)
	require.Equal(t, run.TaskCategory, f.queue.tasks[0].Category)
}

func TestService_Create_Overrides(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	model := "gpt-4o"
	extra := "keep answers short"
	r, err := f.svc.Create(ctx, f.threadID, run.CreateParams{
		AssistantID:            f.assistant.PublicID,
		Model:                  &model,
		AdditionalInstructions: &extra,
	})
	require.NoError(t, err)

	require.Equal(t, "gpt-4o", r.Model)
	require.Equal(t, "assistant instructions\nkeep answers short", r.Instructions)
}

func TestService_Create_UnknownAssistant(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Create(context.Background(), f.threadID, run.CreateParams{AssistantID: "asst_missing"})
	require.Error(t, err)
	require.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
	require.Empty(t, f.queue.tasks)
}

func TestService_Create_EnqueueFailureParksRun(t *testing.T) {
	f := newServiceFixture(t)
	f.queue.err = errors.New("queue closed")

	_, err := f.svc.Create(context.Background(), f.threadID, run.CreateParams{AssistantID: f.assistant.PublicID})
	require.Error(t, err)

	runs, listErr := f.runs.ListRunsByStatus(context.Background(), []run.Status{run.StatusFailed})
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].LastError)
	require.Equal(t, run.ErrorTypeServer, runs[0].LastError.Type)
}

func TestService_CreateThreadAndRun(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateThreadAndRun(ctx, run.CreateThreadAndRunParams{
		Messages: []run.SeedMessage{{Role: message.RoleUser, Content: "hello"}},
		Run:      run.CreateParams{AssistantID: f.assistant.PublicID},
	})
	require.NoError(t, err)
	require.NotEqual(t, f.threadID, r.ThreadID)
	require.Equal(t, run.StatusQueued, r.Status)
}

func TestService_Cancel(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.threadID, run.CreateParams{AssistantID: f.assistant.PublicID})
	require.NoError(t, err)
	f.queue.tasks = nil

	cancelled, err := f.svc.Cancel(ctx, f.threadID, r.PublicID)
	require.NoError(t, err)
	require.Equal(t, run.StatusCancelling, cancelled.Status)
	require.Len(t, f.queue.tasks, 1, "cancel must schedule a finalizer task")
}

func TestService_Cancel_TerminalRunConflicts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.threadID, run.CreateParams{AssistantID: f.assistant.PublicID})
	require.NoError(t, err)

	_, err = f.runs.UpdateRunStatusGuarded(ctx, f.threadID, r.PublicID,
		[]run.Status{run.StatusQueued}, run.StatusCompleted, run.StatusPatch{})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, f.threadID, r.PublicID)
	require.Error(t, err)
	require.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))
}

// suspend moves a freshly created run into requires_action with one open
// tool_calls step, the way a worker leaves it.
func (f *serviceFixture) suspend(t *testing.T, r *run.Run, callIDs ...string) *run.Step {
	t.Helper()
	ctx := context.Background()

	details := run.StepDetails{Type: run.StepTypeToolCalls}
	var pending []llm.ToolCall
	for _, id := range callIDs {
		details.ToolCalls = append(details.ToolCalls, run.ToolCallDetail{
			ID:       id,
			Type:     assistant.ToolTypeFunction,
			Function: run.FunctionCallDetail{Name: "client_tool", Arguments: "{}"},
		})
		pending = append(pending, llm.ToolCall{ID: id, Type: "function",
			Function: llm.ToolFunction{Name: "client_tool", Arguments: []byte("{}")}})
	}
	step := &run.Step{
		PublicID:    idgen.MustGenerate(idgen.PrefixRunStep),
		Object:      run.StepObjectType,
		RunID:       r.PublicID,
		ThreadID:    r.ThreadID,
		AssistantID: r.AssistantID,
		Type:        run.StepTypeToolCalls,
		Status:      run.StepStatusInProgress,
		StepDetails: details,
	}
	require.NoError(t, f.runs.CreateRunStep(ctx, step))

	action := &run.RequiredAction{
		Type:              run.RequiredActionSubmitToolOutputs,
		SubmitToolOutputs: &run.SubmitToolOutputsAction{ToolCalls: pending},
	}
	_, err := f.runs.UpdateRunStatusGuarded(ctx, r.ThreadID, r.PublicID,
		[]run.Status{run.StatusQueued}, run.StatusRequiresAction,
		run.StatusPatch{RequiredAction: action})
	require.NoError(t, err)
	return step
}

func TestService_SubmitToolOutputs(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.threadID, run.CreateParams{AssistantID: f.assistant.PublicID})
	require.NoError(t, err)
	step := f.suspend(t, r, "call_1", "call_2")
	f.queue.tasks = nil

	updated, err := f.svc.SubmitToolOutputs(ctx, f.threadID, r.PublicID, []run.ToolOutput{
		{ToolCallID: "call_1", Output: "first"},
		{ToolCallID: "call_2", Output: "second"},
	})
	require.NoError(t, err)

	require.Equal(t, run.StatusQueued, updated.Status)
	require.Nil(t, updated.RequiredAction, "required action must be cleared")
	require.Len(t, f.queue.tasks, 1, "resume must be scheduled")

	stored, err := f.runs.FindStepByPublicID(ctx, r.PublicID, step.PublicID)
	require.NoError(t, err)
	require.Equal(t, run.StepStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.Equal(t, "first", stored.StepDetails.ToolCalls[0].Function.Output)
	require.Equal(t, "second", stored.StepDetails.ToolCalls[1].Function.Output)
}

func TestService_SubmitToolOutputs_Validation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.threadID, run.CreateParams{AssistantID: f.assistant.PublicID})
	require.NoError(t, err)
	f.suspend(t, r, "call_1", "call_2")

	t.Run("unexpected id", func(t *testing.T) {
		_, err := f.svc.SubmitToolOutputs(ctx, f.threadID, r.PublicID, []run.ToolOutput{
			{ToolCallID: "call_1", Output: "x"},
			{ToolCallID: "call_999", Output: "y"},
		})
		require.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := f.svc.SubmitToolOutputs(ctx, f.threadID, r.PublicID, []run.ToolOutput{
			{ToolCallID: "call_1", Output: "x"},
		})
		require.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	})
}

func TestService_SubmitToolOutputs_WrongStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.threadID, run.CreateParams{AssistantID: f.assistant.PublicID})
	require.NoError(t, err)

	_, err = f.svc.SubmitToolOutputs(ctx, f.threadID, r.PublicID, []run.ToolOutput{
		{ToolCallID: "call_1", Output: "x"},
	})
	require.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))
}

func TestService_ExpireOverdueRuns(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.threadID, run.CreateParams{AssistantID: f.assistant.PublicID})
	require.NoError(t, err)

	// Push the deadline into the past.
	stored, err := f.runs.FindRunByPublicID(ctx, f.threadID, r.PublicID)
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	stored.ExpiresAt = &past
	require.NoError(t, f.runs.UpdateRun(ctx, stored))

	require.NoError(t, f.svc.ExpireOverdueRuns(ctx))

	after, err := f.runs.FindRunByPublicID(ctx, f.threadID, r.PublicID)
	require.NoError(t, err)
	require.Equal(t, run.StatusExpired, after.Status)
	require.NotNil(t, after.ExpiredAt)
}

func TestService_RequeueStartupRuns(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.threadID, run.CreateParams{AssistantID: f.assistant.PublicID})
	require.NoError(t, err)
	f.queue.tasks = nil

	require.NoError(t, f.svc.RequeueStartupRuns(ctx))
	require.Len(t, f.queue.tasks, 1)
}
