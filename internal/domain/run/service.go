package run

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"assistant-server/internal/domain/assistant"
	"assistant-server/internal/domain/message"
	"assistant-server/internal/domain/page"
	"assistant-server/internal/domain/thread"
	"assistant-server/internal/scheduler"
	"assistant-server/internal/utils/idgen"
	"assistant-server/internal/utils/platformerrors"
)

// TaskCategory is the scheduler category consumed by the run task handler.
const TaskCategory = "run_object"

// TaskPayload is the JSON body of a run execution task. The payload carries
// identifiers only; the worker re-reads the run from storage so redelivered
// tasks never act on stale state.
type TaskPayload struct {
	ThreadID string `json:"thread_id"`
	RunID    string `json:"run_id"`
}

// ToolOutput is one client submitted tool result.
type ToolOutput struct {
	ToolCallID string
	Output     string
}

// CreateParams carries run creation inputs. Nil override fields inherit
// from the assistant.
type CreateParams struct {
	AssistantID            string
	Model                  *string
	Instructions           *string
	AdditionalInstructions *string
	Tools                  []assistant.Tool
	Temperature            *float64
	TopP                   *float64
	Metadata               map[string]any
}

// SeedMessage is a message created together with a thread in
// CreateThreadAndRun.
type SeedMessage struct {
	Role     message.Role
	Content  string
	Metadata map[string]any
}

// CreateThreadAndRunParams bundles the thread, its seed messages and the
// first run.
type CreateThreadAndRunParams struct {
	ThreadMetadata map[string]any
	Messages       []SeedMessage
	Run            CreateParams
}

// Service exposes run domain operations.
type Service interface {
	Create(ctx context.Context, threadID string, params CreateParams) (*Run, error)
	CreateThreadAndRun(ctx context.Context, params CreateThreadAndRunParams) (*Run, error)
	Get(ctx context.Context, threadID, runID string) (*Run, error)
	List(ctx context.Context, threadID string, params page.Params) (page.Page[*Run], error)
	Modify(ctx context.Context, threadID, runID string, metadata map[string]any) (*Run, error)
	Cancel(ctx context.Context, threadID, runID string) (*Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error)

	ListSteps(ctx context.Context, threadID, runID string, params page.Params) (page.Page[*Step], error)
	GetStep(ctx context.Context, threadID, runID, stepID string) (*Step, error)

	// RequeueStartupRuns re-enqueues runs that were queued or cancelling
	// when the previous process stopped.
	RequeueStartupRuns(ctx context.Context) error
	// ExpireOverdueRuns moves idle runs past their expiry to expired.
	ExpireOverdueRuns(ctx context.Context) error
}

// Enqueuer is the scheduler surface the service needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, task scheduler.Task) error
}

type service struct {
	repo       Repository
	assistants assistant.Repository
	threads    thread.Repository
	messages   message.Service
	queue      Enqueuer
	expiry     time.Duration
	log        zerolog.Logger
}

// NewService wires the run service.
func NewService(repo Repository, assistants assistant.Repository, threads thread.Repository,
	messages message.Service, queue Enqueuer, expiry time.Duration, log zerolog.Logger) Service {
	return &service{
		repo:       repo,
		assistants: assistants,
		threads:    threads,
		messages:   messages,
		queue:      queue,
		expiry:     expiry,
		log:        log.With().Str("component", "run-service").Logger(),
	}
}

func (s *service) Create(ctx context.Context, threadID string, params CreateParams) (*Run, error) {
	if _, err := s.threads.FindByPublicID(ctx, threadID); err != nil {
		return nil, err
	}
	asst, err := s.assistants.FindByPublicID(ctx, params.AssistantID)
	if err != nil {
		return nil, err
	}

	model := asst.Model
	if params.Model != nil && strings.TrimSpace(*params.Model) != "" {
		model = *params.Model
	}
	instructions := asst.Instructions
	if params.Instructions != nil {
		instructions = *params.Instructions
	}
	if params.AdditionalInstructions != nil && *params.AdditionalInstructions != "" {
		if instructions != "" {
			instructions += "\n"
		}
		instructions += *params.AdditionalInstructions
	}
	tools := asst.Tools
	if params.Tools != nil {
		tools = params.Tools
	}
	temperature := asst.Temperature
	if params.Temperature != nil {
		temperature = params.Temperature
	}
	topP := asst.TopP
	if params.TopP != nil {
		topP = params.TopP
	}

	expiresAt := time.Now().Add(s.expiry)
	r := &Run{
		PublicID:     idgen.MustGenerate(idgen.PrefixRun),
		Object:       ObjectType,
		ThreadID:     threadID,
		AssistantID:  asst.PublicID,
		Model:        model,
		Instructions: instructions,
		Tools:        tools,
		Status:       StatusQueued,
		Temperature:  temperature,
		TopP:         topP,
		Metadata:     params.Metadata,
		ExpiresAt:    &expiresAt,
	}
	if r.Tools == nil {
		r.Tools = []assistant.Tool{}
	}

	if err := s.repo.CreateRun(ctx, r); err != nil {
		return nil, err
	}
	if err := s.enqueueRun(ctx, r); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("run_id", r.PublicID).
		Str("thread_id", threadID).
		Str("assistant_id", asst.PublicID).
		Msg("run created")
	return r, nil
}

func (s *service) CreateThreadAndRun(ctx context.Context, params CreateThreadAndRunParams) (*Run, error) {
	t := &thread.Thread{
		PublicID: idgen.MustGenerate(idgen.PrefixThread),
		Object:   thread.ObjectType,
		Metadata: params.ThreadMetadata,
	}
	if err := s.threads.Create(ctx, t); err != nil {
		return nil, err
	}
	for _, m := range params.Messages {
		if _, err := s.messages.Create(ctx, t.PublicID, message.CreateParams{
			Role:     m.Role,
			Content:  m.Content,
			Metadata: m.Metadata,
		}); err != nil {
			return nil, err
		}
	}
	return s.Create(ctx, t.PublicID, params.Run)
}

func (s *service) Get(ctx context.Context, threadID, runID string) (*Run, error) {
	return s.repo.FindRunByPublicID(ctx, threadID, runID)
}

func (s *service) List(ctx context.Context, threadID string, params page.Params) (page.Page[*Run], error) {
	return s.repo.ListRuns(ctx, threadID, params.Normalize())
}

func (s *service) Modify(ctx context.Context, threadID, runID string, metadata map[string]any) (*Run, error) {
	r, err := s.repo.FindRunByPublicID(ctx, threadID, runID)
	if err != nil {
		return nil, err
	}
	if metadata != nil {
		r.Metadata = metadata
		if err := s.repo.UpdateRun(ctx, r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Cancel moves a live run to cancelling and schedules a task so the
// transition completes even when no worker currently holds the run.
func (s *service) Cancel(ctx context.Context, threadID, runID string) (*Run, error) {
	r, err := s.repo.UpdateRunStatusGuarded(ctx, threadID, runID,
		[]Status{StatusQueued, StatusInProgress, StatusRequiresAction}, StatusCancelling, StatusPatch{})
	if err != nil {
		if err == ErrStatusGuard {
			current, findErr := s.repo.FindRunByPublicID(ctx, threadID, runID)
			if findErr != nil {
				return nil, findErr
			}
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
				"run "+runID+" cannot be cancelled in status "+current.Status.String(), nil, "")
		}
		return nil, err
	}

	if err := s.enqueueRun(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info().Str("run_id", runID).Str("thread_id", threadID).Msg("run cancelling")
	return r, nil
}

// SubmitToolOutputs resolves the pending tool calls of a suspended run and
// puts it back on the queue.
func (s *service) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	r, err := s.repo.FindRunByPublicID(ctx, threadID, runID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusRequiresAction {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
			"run "+runID+" is not waiting for tool outputs, status is "+r.Status.String(), nil, "")
	}
	if r.RequiredAction == nil || r.RequiredAction.SubmitToolOutputs == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"run "+runID+" is requires_action without a required action", nil, "")
	}

	expected := make(map[string]bool, len(r.RequiredAction.SubmitToolOutputs.ToolCalls))
	for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
		expected[tc.ID] = true
	}
	submitted := make(map[string]string, len(outputs))
	for _, out := range outputs {
		if !expected[out.ToolCallID] {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				"unexpected tool_call_id "+out.ToolCallID, nil, "")
		}
		submitted[out.ToolCallID] = out.Output
	}
	for id := range expected {
		if _, ok := submitted[id]; !ok {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				"missing output for tool_call_id "+id, nil, "")
		}
	}

	step, err := s.lastStep(ctx, runID)
	if err != nil {
		return nil, err
	}
	if step == nil || step.Type != StepTypeToolCalls || step.Status != StepStatusInProgress {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"run "+runID+" has no pending tool_calls step", nil, "")
	}

	for i := range step.StepDetails.ToolCalls {
		tc := &step.StepDetails.ToolCalls[i]
		if out, ok := submitted[tc.ID]; ok {
			tc.Function.Output = out
		}
	}
	now := time.Now()
	step.Status = StepStatusCompleted
	step.CompletedAt = &now
	if err := s.repo.UpdateRunStep(ctx, step); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateRunStatusGuarded(ctx, threadID, runID,
		[]Status{StatusRequiresAction}, StatusQueued, StatusPatch{ClearRequired: true})
	if err != nil {
		if err == ErrStatusGuard {
			// Lost the race with a cancel or expiry between the read above
			// and this write.
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
				"run "+runID+" left requires_action before outputs were accepted", nil, "")
		}
		return nil, err
	}

	if err := s.enqueueRun(ctx, updated); err != nil {
		return nil, err
	}
	s.log.Info().Str("run_id", runID).Str("thread_id", threadID).Int("outputs", len(outputs)).Msg("tool outputs submitted")
	return updated, nil
}

func (s *service) ListSteps(ctx context.Context, threadID, runID string, params page.Params) (page.Page[*Step], error) {
	if _, err := s.repo.FindRunByPublicID(ctx, threadID, runID); err != nil {
		return page.Page[*Step]{}, err
	}
	return s.repo.ListRunSteps(ctx, runID, params.Normalize())
}

func (s *service) GetStep(ctx context.Context, threadID, runID, stepID string) (*Step, error) {
	if _, err := s.repo.FindRunByPublicID(ctx, threadID, runID); err != nil {
		return nil, err
	}
	return s.repo.FindStepByPublicID(ctx, runID, stepID)
}

func (s *service) RequeueStartupRuns(ctx context.Context) error {
	runs, err := s.repo.ListRunsByStatus(ctx, []Status{StatusQueued, StatusCancelling})
	if err != nil {
		return err
	}
	for _, r := range runs {
		if err := s.enqueueRun(ctx, r); err != nil {
			return err
		}
	}
	if len(runs) > 0 {
		s.log.Info().Int("count", len(runs)).Msg("requeued runs found at startup")
	}
	return nil
}

func (s *service) ExpireOverdueRuns(ctx context.Context) error {
	runs, err := s.repo.ListRunsByStatus(ctx, []Status{StatusQueued, StatusRequiresAction, StatusCancelling})
	if err != nil {
		return err
	}
	now := time.Now()
	for _, r := range runs {
		if r.ExpiresAt == nil || r.ExpiresAt.After(now) {
			continue
		}
		expiredAt := now
		_, err := s.repo.UpdateRunStatusGuarded(ctx, r.ThreadID, r.PublicID,
			[]Status{StatusQueued, StatusRequiresAction, StatusCancelling}, StatusExpired,
			StatusPatch{ExpiredAt: &expiredAt, ClearRequired: true})
		if err == ErrStatusGuard {
			// A worker claimed the run first; its own expiry check applies.
			continue
		}
		if err != nil {
			return err
		}
		s.log.Info().Str("run_id", r.PublicID).Str("thread_id", r.ThreadID).Msg("run expired")
	}
	return nil
}

// lastStep pages to the end of the step list.
func (s *service) lastStep(ctx context.Context, runID string) (*Step, error) {
	params := page.Params{Order: page.OrderAsc, Limit: page.MaxLimit}
	var last *Step
	for {
		pg, err := s.repo.ListRunSteps(ctx, runID, params)
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

func (s *service) enqueueRun(ctx context.Context, r *Run) error {
	payload, err := json.Marshal(TaskPayload{ThreadID: r.ThreadID, RunID: r.PublicID})
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"marshal run task payload", err, "")
	}
	task := scheduler.Task{
		ID:       idgen.MustGenerate(idgen.PrefixTask),
		Category: TaskCategory,
		Payload:  payload,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.markEnqueueFailure(ctx, r)
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"enqueue run task for run "+r.PublicID, err, "")
	}
	return nil
}

// markEnqueueFailure parks a run that could not reach the queue so it does
// not sit in queued forever with no task behind it.
func (s *service) markEnqueueFailure(ctx context.Context, r *Run) {
	now := time.Now()
	_, err := s.repo.UpdateRunStatusGuarded(ctx, r.ThreadID, r.PublicID,
		[]Status{StatusQueued, StatusCancelling}, StatusFailed, StatusPatch{
			FailedAt:  &now,
			LastError: &LastError{Type: ErrorTypeServer, Message: "task queue rejected the run"},
		})
	if err != nil && err != ErrStatusGuard {
		s.log.Error().Err(err).Str("run_id", r.PublicID).Msg("failed to park run after enqueue failure")
	}
}
