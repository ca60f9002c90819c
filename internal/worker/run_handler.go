// Package worker contains the background task handlers behind the scheduler.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"assistant-server/internal/domain/agent"
	"assistant-server/internal/domain/assistant"
	"assistant-server/internal/domain/llm"
	"assistant-server/internal/domain/message"
	"assistant-server/internal/domain/page"
	"assistant-server/internal/domain/run"
	"assistant-server/internal/domain/tool"
	"assistant-server/internal/infrastructure/metrics"
	"assistant-server/internal/infrastructure/observability"
	"assistant-server/internal/scheduler"
	"assistant-server/internal/utils/idgen"
	"assistant-server/internal/utils/platformerrors"
)

// RunTaskHandler drives one run through the agent loop. It owns every
// status transition after queued: each task claims the run with a guarded
// update, replays durable steps into agent state, and persists every loop
// transition before moving the run itself.
type RunTaskHandler struct {
	runs       run.Repository
	messages   message.Service
	assistants assistant.Repository
	registry   *tool.Registry
	executor   *agent.Executor
	log        zerolog.Logger
}

// NewRunTaskHandler wires the handler.
func NewRunTaskHandler(runs run.Repository, messages message.Service, assistants assistant.Repository,
	registry *tool.Registry, executor *agent.Executor, log zerolog.Logger) *RunTaskHandler {
	return &RunTaskHandler{
		runs:       runs,
		messages:   messages,
		assistants: assistants,
		registry:   registry,
		executor:   executor,
		log:        log.With().Str("component", "run-task-handler").Logger(),
	}
}

// Accept claims tasks of the run category.
func (h *RunTaskHandler) Accept(task scheduler.Task) bool {
	return task.Category == run.TaskCategory
}

// Handle executes one run task end to end.
func (h *RunTaskHandler) Handle(ctx context.Context, task scheduler.Task) error {
	var payload run.TaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		metrics.RecordRunTask("malformed")
		return fmt.Errorf("unmarshal run task payload: %w", err)
	}
	log := h.log.With().Str("run_id", payload.RunID).Str("thread_id", payload.ThreadID).Logger()

	r, err := h.runs.FindRunByPublicID(ctx, payload.ThreadID, payload.RunID)
	if err != nil {
		metrics.RecordRunTask("missing")
		return err
	}

	ctx, span := observability.StartRunSpan(ctx, r.PublicID, r.ThreadID, r.AssistantID)
	defer span.End()

	switch r.Status {
	case run.StatusQueued, run.StatusRequiresAction:
	case run.StatusCancelling:
		// Finalizer task scheduled by Cancel, or redelivery after a crash.
		return h.finalize(ctx, log, r, &agent.Finish{IsCancelled: true})
	default:
		// Redelivered task for a run another worker already drove on.
		log.Warn().Str("status", r.Status.String()).Msg("precondition failure for run task")
		metrics.RecordRunTask("skipped")
		return nil
	}

	if expired(r) {
		return h.finalize(ctx, log, r, &agent.Finish{IsExpired: true})
	}

	state, err := h.reconstruct(ctx, r)
	if err != nil {
		// Reconstruction works from records this server wrote itself, so a
		// failure here is a server fault regardless of the error's origin.
		observability.RecordError(span, err)
		log.Error().Err(err).Msg("failed to reconstruct agent state")
		return h.finalize(ctx, log, r, &agent.Finish{
			IsFailed:    true,
			ErrorType:   run.ErrorTypeServer,
			ErrorReason: err.Error(),
		})
	}
	if last := state.LastStep(); last != nil && last.Thought != nil && last.Thought.Pause != nil {
		// Tool outputs were never submitted; nothing to drive yet.
		log.Warn().Msg("run still waits for tool outputs, ignoring task")
		metrics.RecordRunTask("skipped")
		return nil
	}

	patch := run.StatusPatch{}
	if r.StartedAt == nil {
		now := time.Now()
		patch.StartedAt = &now
	}
	claimed, err := h.runs.UpdateRunStatusGuarded(ctx, r.ThreadID, r.PublicID,
		[]run.Status{run.StatusQueued, run.StatusRequiresAction}, run.StatusInProgress, patch)
	if err != nil {
		if err == run.ErrStatusGuard {
			log.Warn().Msg("lost claim race for run")
			metrics.RecordRunTask("skipped")
			return nil
		}
		return err
	}
	metrics.RecordRunTransition(run.StatusInProgress.String())
	observability.AddStatusTransition(span, r.Status.String(), run.StatusInProgress.String())
	log.Info().Msg("run claimed")

	observe := func(ctx context.Context, state *agent.State) error {
		return h.persistTransition(ctx, log, claimed, state)
	}
	if err := h.executor.Stream(ctx, state, h.earlyStopFunc(r.ThreadID, r.PublicID), observe); err != nil {
		observability.RecordError(span, err)
		log.Error().Err(err).Msg("agent loop failed")
		if ferr := h.finalize(ctx, log, claimed, failureFinish(err)); ferr != nil {
			return ferr
		}
		return nil
	}

	metrics.RecordRunTask("completed")
	return nil
}

// earlyStopFunc re-reads the run once per loop iteration so cancels and
// expiry cut in at the next step boundary.
func (h *RunTaskHandler) earlyStopFunc(threadID, runID string) agent.EarlyStop {
	return func(ctx context.Context) *agent.Finish {
		current, err := h.runs.FindRunByPublicID(ctx, threadID, runID)
		if err != nil {
			return &agent.Finish{
				IsFailed:    true,
				ErrorType:   run.ErrorTypeInvalidRequest,
				ErrorReason: "run disappeared during execution",
			}
		}
		switch current.Status {
		case run.StatusCancelling, run.StatusCancelled:
			return &agent.Finish{IsCancelled: true}
		case run.StatusExpired:
			return &agent.Finish{IsExpired: true}
		}
		if expired(current) {
			return &agent.Finish{IsExpired: true}
		}
		return nil
	}
}

// reconstruct rebuilds agent state from the run's durable records.
func (h *RunTaskHandler) reconstruct(ctx context.Context, r *run.Run) (*agent.State, error) {
	steps, err := h.listAllSteps(ctx, r.PublicID)
	if err != nil {
		return nil, err
	}

	input, err := h.messages.LatestUserMessage(ctx, r.ThreadID)
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			return nil, agent.ErrNoUserMessage
		}
		return nil, err
	}

	tools, err := h.functionTools(ctx, r)
	if err != nil {
		return nil, err
	}

	return agent.Reconstruct(agent.ReconstructInput{
		Run:               r,
		Steps:             steps,
		LatestUserMessage: input.TextValue(),
		MessageText: func(messageID string) (string, error) {
			m, err := h.messages.Get(ctx, r.ThreadID, messageID)
			if err != nil {
				return "", err
			}
			return m.TextValue(), nil
		},
		FunctionTools: tools,
	})
}

// functionTools merges the tools declared on the assistant and the run with
// the server's built-in toolkit, first occurrence of a name winning.
func (h *RunTaskHandler) functionTools(ctx context.Context, r *run.Run) ([]llm.ToolDefinition, error) {
	asst, err := h.assistants.FindByPublicID(ctx, r.AssistantID)
	if err != nil {
		return nil, err
	}

	var merged []assistant.Tool
	merged = append(merged, asst.Tools...)
	merged = append(merged, r.Tools...)

	seen := make(map[string]bool)
	var defs []llm.ToolDefinition
	for _, fn := range assistant.FunctionTools(merged) {
		if seen[fn.Name] {
			continue
		}
		seen[fn.Name] = true
		defs = append(defs, llm.ToolDefinition{
			Type: "function",
			Function: llm.ToolFunctionSchema{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		})
	}

	builtins, err := h.registry.ListSchemas()
	if err != nil {
		return nil, err
	}
	for _, def := range builtins {
		if seen[def.Function.Name] {
			continue
		}
		seen[def.Function.Name] = true
		defs = append(defs, def)
	}
	return defs, nil
}

// persistTransition writes the latest agent step to storage. Steps are
// always written before the run status they imply.
func (h *RunTaskHandler) persistTransition(ctx context.Context, log zerolog.Logger, r *run.Run, state *agent.State) error {
	last := state.LastStep()
	if last == nil {
		return fmt.Errorf("observe called with empty state")
	}

	var kind string
	switch {
	case last.Thought != nil && last.Thought.Continuation != nil:
		kind = "continuation"
	case last.Thought != nil && last.Thought.Pause != nil:
		kind = "pause"
	case last.Observation != nil:
		kind = "observation"
	case last.Thought != nil && last.Thought.Finish != nil:
		kind = "finish"
	default:
		return fmt.Errorf("illegal agent step")
	}

	ctx, span := observability.StartStepSpan(ctx, r.PublicID, kind)
	defer span.End()

	var err error
	switch kind {
	case "continuation":
		err = h.onContinuation(ctx, log, r, last.Thought.Continuation)
	case "pause":
		err = h.onPause(ctx, log, r, last.Thought.Pause)
	case "observation":
		err = h.onObservation(ctx, log, r, last.Observation)
	default:
		err = h.finalize(ctx, log, r, last.Thought.Finish)
	}
	observability.RecordError(span, err)
	return err
}

// onContinuation records the assistant message and, when tool calls are
// requested, opens a tool_calls step.
func (h *RunTaskHandler) onContinuation(ctx context.Context, log zerolog.Logger, r *run.Run, c *agent.Continuation) error {
	if strings.TrimSpace(c.Message.Content) != "" {
		if _, _, err := h.createMessageStep(ctx, r, c.Message.Content); err != nil {
			return err
		}
	}

	if len(c.Message.ToolCalls) == 0 {
		return nil
	}

	details := run.StepDetails{Type: run.StepTypeToolCalls}
	for _, tc := range c.Message.ToolCalls {
		details.ToolCalls = append(details.ToolCalls, run.ToolCallDetail{
			ID:   tc.ID,
			Type: assistant.ToolTypeFunction,
			Function: run.FunctionCallDetail{
				Name:      tc.Function.Name,
				Arguments: string(tc.Function.Arguments),
			},
		})
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
	if err := h.runs.CreateRunStep(ctx, step); err != nil {
		return err
	}
	metrics.RecordRunStep(string(run.StepTypeToolCalls))
	log.Info().Str("step_id", step.PublicID).Int("tool_calls", len(details.ToolCalls)).Msg("tool calls step opened")
	return nil
}

// onPause stores resolved built-in outputs on the open step and suspends
// the run on the remaining client executed calls.
func (h *RunTaskHandler) onPause(ctx context.Context, log zerolog.Logger, r *run.Run, p *agent.Pause) error {
	step, err := h.openToolCallsStep(ctx, r)
	if err != nil {
		return err
	}

	mergeOutputs(step, p.Completed)
	if err := h.runs.UpdateRunStep(ctx, step); err != nil {
		return err
	}

	unresolved := step.UnresolvedToolCalls()
	action := &run.RequiredAction{
		Type:              run.RequiredActionSubmitToolOutputs,
		SubmitToolOutputs: &run.SubmitToolOutputsAction{ToolCalls: unresolved},
	}
	_, err = h.runs.UpdateRunStatusGuarded(ctx, r.ThreadID, r.PublicID,
		[]run.Status{run.StatusInProgress}, run.StatusRequiresAction,
		run.StatusPatch{RequiredAction: action})
	if err != nil {
		if err == run.ErrStatusGuard {
			// Cancel or expiry won the race; their finalizer owns the run now.
			log.Warn().Msg("run left in_progress before suspension")
			return nil
		}
		return err
	}
	metrics.RecordRunTransition(run.StatusRequiresAction.String())
	observability.AddStatusTransition(trace.SpanFromContext(ctx),
		run.StatusInProgress.String(), run.StatusRequiresAction.String())
	log.Info().Int("pending_tool_calls", len(unresolved)).Msg("run suspended on tool outputs")
	return nil
}

// onObservation closes the open tool_calls step with its outputs.
func (h *RunTaskHandler) onObservation(ctx context.Context, log zerolog.Logger, r *run.Run, o *agent.Observation) error {
	step, err := h.openToolCallsStep(ctx, r)
	if err != nil {
		return err
	}

	mergeOutputs(step, o.ToolMessages)
	now := time.Now()
	step.Status = run.StepStatusCompleted
	step.CompletedAt = &now
	if err := h.runs.UpdateRunStep(ctx, step); err != nil {
		return err
	}
	log.Info().Str("step_id", step.PublicID).Msg("tool calls step completed")
	return nil
}

// finalize writes the terminal step and then the terminal run status.
func (h *RunTaskHandler) finalize(ctx context.Context, log zerolog.Logger, r *run.Run, f *agent.Finish) error {
	liveStatuses := []run.Status{run.StatusQueued, run.StatusInProgress, run.StatusRequiresAction, run.StatusCancelling}
	now := time.Now()

	switch {
	case f.IsFailed:
		lastErr := &run.LastError{Type: f.ErrorType, Message: f.ErrorReason}
		if lastErr.Type == "" {
			log.Warn().Msg("failure finish carries no error type")
			lastErr.Type = run.ErrorTypeInvalidRequest
		}
		if err := h.closeOpenStep(ctx, r, run.StepStatusFailed, lastErr); err != nil {
			return err
		}
		return h.moveTerminal(ctx, log, r, liveStatuses, run.StatusFailed,
			run.StatusPatch{FailedAt: &now, LastError: lastErr, ClearRequired: true})

	case f.IsCancelled:
		if err := h.closeOpenStep(ctx, r, run.StepStatusCancelled, nil); err != nil {
			return err
		}
		return h.moveTerminal(ctx, log, r, liveStatuses, run.StatusCancelled,
			run.StatusPatch{CancelledAt: &now, ClearRequired: true})

	case f.IsExpired:
		if err := h.closeOpenStep(ctx, r, run.StepStatusExpired, nil); err != nil {
			return err
		}
		return h.moveTerminal(ctx, log, r, liveStatuses, run.StatusExpired,
			run.StatusPatch{ExpiredAt: &now, ClearRequired: true})

	default:
		if err := h.closeOpenStep(ctx, r, run.StepStatusCompleted, nil); err != nil {
			return err
		}
		if _, _, err := h.createMessageStep(ctx, r, f.Response); err != nil {
			return err
		}
		return h.moveTerminal(ctx, log, r, []run.Status{run.StatusInProgress}, run.StatusCompleted,
			run.StatusPatch{CompletedAt: &now})
	}
}

func (h *RunTaskHandler) moveTerminal(ctx context.Context, log zerolog.Logger, r *run.Run,
	from []run.Status, to run.Status, patch run.StatusPatch) error {
	_, err := h.runs.UpdateRunStatusGuarded(ctx, r.ThreadID, r.PublicID, from, to, patch)
	if err != nil {
		if err == run.ErrStatusGuard {
			log.Warn().Str("to_status", to.String()).Msg("run already finalized elsewhere")
			return nil
		}
		return err
	}
	metrics.RecordRunTransition(to.String())
	metrics.RecordRunTask(to.String())
	observability.AddStatusTransition(trace.SpanFromContext(ctx), r.Status.String(), to.String())
	log.Info().Str("to_status", to.String()).Msg("run finalized")
	return nil
}

// createMessageStep persists the assistant message and the message_creation
// step that references it.
func (h *RunTaskHandler) createMessageStep(ctx context.Context, r *run.Run, content string) (*run.Step, *message.Message, error) {
	msg, err := h.messages.Create(ctx, r.ThreadID, message.CreateParams{
		Role:        message.RoleAssistant,
		Content:     content,
		AssistantID: &r.AssistantID,
		RunID:       &r.PublicID,
	})
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	step := &run.Step{
		PublicID:    idgen.MustGenerate(idgen.PrefixRunStep),
		Object:      run.StepObjectType,
		RunID:       r.PublicID,
		ThreadID:    r.ThreadID,
		AssistantID: r.AssistantID,
		Type:        run.StepTypeMessageCreation,
		Status:      run.StepStatusCompleted,
		CompletedAt: &now,
		StepDetails: run.StepDetails{
			Type:            run.StepTypeMessageCreation,
			MessageCreation: &run.MessageCreationDetails{MessageID: msg.PublicID},
		},
	}
	if err := h.runs.CreateRunStep(ctx, step); err != nil {
		return nil, nil, err
	}
	metrics.RecordRunStep(string(run.StepTypeMessageCreation))
	return step, msg, nil
}

// closeOpenStep moves a trailing in_progress step to a terminal status. A
// missing or already closed step is fine; finalization paths share this.
func (h *RunTaskHandler) closeOpenStep(ctx context.Context, r *run.Run, status run.StepStatus, lastErr *run.LastError) error {
	step, err := h.lastStep(ctx, r.PublicID)
	if err != nil {
		return err
	}
	if step == nil || step.Status != run.StepStatusInProgress {
		return nil
	}

	now := time.Now()
	step.Status = status
	step.LastError = lastErr
	switch status {
	case run.StepStatusCompleted:
		step.CompletedAt = &now
	case run.StepStatusFailed:
		step.FailedAt = &now
	case run.StepStatusCancelled:
		step.CancelledAt = &now
	case run.StepStatusExpired:
		step.ExpiredAt = &now
	}
	return h.runs.UpdateRunStep(ctx, step)
}

// openToolCallsStep returns the trailing step, which must be an open
// tool_calls step for the pause and observation paths.
func (h *RunTaskHandler) openToolCallsStep(ctx context.Context, r *run.Run) (*run.Step, error) {
	step, err := h.lastStep(ctx, r.PublicID)
	if err != nil {
		return nil, err
	}
	if step == nil || step.Type != run.StepTypeToolCalls || step.Status != run.StepStatusInProgress {
		return nil, fmt.Errorf("run %s has no open tool_calls step", r.PublicID)
	}
	return step, nil
}

func (h *RunTaskHandler) lastStep(ctx context.Context, runID string) (*run.Step, error) {
	params := page.Params{Order: page.OrderAsc, Limit: page.MaxLimit}
	var last *run.Step
	for {
		pg, err := h.runs.ListRunSteps(ctx, runID, params)
		if err != nil {
			return nil, err
		}
		if len(pg.Data) > 0 {
			last = pg.Data[len(pg.Data)-1]
		}
		if !pg.HasMore {
			return last, nil
		}
		params.After = pg.LastID
	}
}

func (h *RunTaskHandler) listAllSteps(ctx context.Context, runID string) ([]*run.Step, error) {
	params := page.Params{Order: page.OrderAsc, Limit: page.MaxLimit}
	var steps []*run.Step
	for {
		pg, err := h.runs.ListRunSteps(ctx, runID, params)
		if err != nil {
			return nil, err
		}
		steps = append(steps, pg.Data...)
		if !pg.HasMore {
			return steps, nil
		}
		params.After = pg.LastID
	}
}

// mergeOutputs copies tool message contents onto the matching call details.
func mergeOutputs(step *run.Step, toolMessages []llm.ChatMessage) {
	for _, tm := range toolMessages {
		for i := range step.StepDetails.ToolCalls {
			if step.StepDetails.ToolCalls[i].ID == tm.ToolCallID {
				step.StepDetails.ToolCalls[i].Function.Output = tm.Content
			}
		}
	}
}

// expired reports whether the run's deadline has passed.
func expired(r *run.Run) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(time.Now())
}

// failureFinish maps a loop execution error onto the client visible
// taxonomy.
func failureFinish(err error) *agent.Finish {
	errType := run.ErrorTypeServer
	switch {
	case platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation),
		platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound):
		errType = run.ErrorTypeInvalidRequest
	case platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal):
		errType = run.ErrorTypeLLM
	}
	return &agent.Finish{IsFailed: true, ErrorType: errType, ErrorReason: err.Error()}
}
