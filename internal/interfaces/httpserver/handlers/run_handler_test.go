package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"assistant-server/internal/domain/page"
	"assistant-server/internal/domain/run"
	"assistant-server/internal/interfaces/httpserver/handlers"
	"assistant-server/internal/utils/platformerrors"
)

// mockRunService implements run.Service with func fields; unset methods
// panic, which keeps each test honest about what it exercises.
type mockRunService struct {
	create             func(ctx context.Context, threadID string, params run.CreateParams) (*run.Run, error)
	createThreadAndRun func(ctx context.Context, params run.CreateThreadAndRunParams) (*run.Run, error)
	get                func(ctx context.Context, threadID, runID string) (*run.Run, error)
	list               func(ctx context.Context, threadID string, params page.Params) (page.Page[*run.Run], error)
	modify             func(ctx context.Context, threadID, runID string, metadata map[string]any) (*run.Run, error)
	cancel             func(ctx context.Context, threadID, runID string) (*run.Run, error)
	submitToolOutputs  func(ctx context.Context, threadID, runID string, outputs []run.ToolOutput) (*run.Run, error)
	listSteps          func(ctx context.Context, threadID, runID string, params page.Params) (page.Page[*run.Step], error)
	getStep            func(ctx context.Context, threadID, runID, stepID string) (*run.Step, error)
}

func (m *mockRunService) Create(ctx context.Context, threadID string, params run.CreateParams) (*run.Run, error) {
	return m.create(ctx, threadID, params)
}

func (m *mockRunService) CreateThreadAndRun(ctx context.Context, params run.CreateThreadAndRunParams) (*run.Run, error) {
	return m.createThreadAndRun(ctx, params)
}

func (m *mockRunService) Get(ctx context.Context, threadID, runID string) (*run.Run, error) {
	return m.get(ctx, threadID, runID)
}

func (m *mockRunService) List(ctx context.Context, threadID string, params page.Params) (page.Page[*run.Run], error) {
	return m.list(ctx, threadID, params)
}

func (m *mockRunService) Modify(ctx context.Context, threadID, runID string, metadata map[string]any) (*run.Run, error) {
	return m.modify(ctx, threadID, runID, metadata)
}

func (m *mockRunService) Cancel(ctx context.Context, threadID, runID string) (*run.Run, error) {
	return m.cancel(ctx, threadID, runID)
}

func (m *mockRunService) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []run.ToolOutput) (*run.Run, error) {
	return m.submitToolOutputs(ctx, threadID, runID, outputs)
}

func (m *mockRunService) ListSteps(ctx context.Context, threadID, runID string, params page.Params) (page.Page[*run.Step], error) {
	return m.listSteps(ctx, threadID, runID, params)
}

func (m *mockRunService) GetStep(ctx context.Context, threadID, runID, stepID string) (*run.Step, error) {
	return m.getStep(ctx, threadID, runID, stepID)
}

func (m *mockRunService) RequeueStartupRuns(context.Context) error { return nil }

func (m *mockRunService) ExpireOverdueRuns(context.Context) error { return nil }

func newRunRouter(service run.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewRunHandler(service, zerolog.Nop())
	r := gin.New()
	r.POST("/v1/threads/runs", h.CreateThreadAndRun)
	r.POST("/v1/threads/:thread_id/runs", h.Create)
	r.POST("/v1/threads/:thread_id/runs/:run_id/cancel", h.Cancel)
	r.POST("/v1/threads/:thread_id/runs/:run_id/submit_tool_outputs", h.SubmitToolOutputs)
	return r
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRunHandler_Create(t *testing.T) {
	var gotThread string
	var gotParams run.CreateParams
	service := &mockRunService{
		create: func(_ context.Context, threadID string, params run.CreateParams) (*run.Run, error) {
			gotThread = threadID
			gotParams = params
			return &run.Run{PublicID: "run_1", Object: run.ObjectType, ThreadID: threadID, Status: run.StatusQueued}, nil
		},
	}
	router := newRunRouter(service)

	w := postJSON(router, "/v1/threads/thread_1/runs",
		`{"assistant_id":"asst_1","model":"gpt-4o","additional_instructions":"be terse"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if gotThread != "thread_1" || gotParams.AssistantID != "asst_1" {
		t.Errorf("params not forwarded: thread %q, %+v", gotThread, gotParams)
	}
	if gotParams.Model == nil || *gotParams.Model != "gpt-4o" {
		t.Errorf("model override lost: %+v", gotParams.Model)
	}
	if gotParams.AdditionalInstructions == nil || *gotParams.AdditionalInstructions != "be terse" {
		t.Errorf("additional instructions lost")
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "run_1" || resp.Status != "queued" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestRunHandler_CreateRequiresAssistantID(t *testing.T) {
	router := newRunRouter(&mockRunService{})

	w := postJSON(router, "/v1/threads/thread_1/runs", `{"model":"gpt-4o"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRunHandler_CreateThreadAndRun(t *testing.T) {
	var got run.CreateThreadAndRunParams
	service := &mockRunService{
		createThreadAndRun: func(_ context.Context, params run.CreateThreadAndRunParams) (*run.Run, error) {
			got = params
			return &run.Run{PublicID: "run_1", Object: run.ObjectType, Status: run.StatusQueued}, nil
		},
	}
	router := newRunRouter(service)

	// The static /threads/runs route must not be captured by :thread_id.
	w := postJSON(router, "/v1/threads/runs",
		`{"assistant_id":"asst_1","thread":{"messages":[{"role":"user","content":"hi"}]}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got.Run.AssistantID != "asst_1" {
		t.Errorf("assistant id not forwarded: %+v", got.Run)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Errorf("seed messages not forwarded: %+v", got.Messages)
	}
}

func TestRunHandler_CancelConflict(t *testing.T) {
	service := &mockRunService{
		cancel: func(ctx context.Context, threadID, runID string) (*run.Run, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
				platformerrors.ErrorTypeConflict, "run "+runID+" is already completed", nil, "")
		},
	}
	router := newRunRouter(service)

	w := postJSON(router, "/v1/threads/thread_1/runs/run_1/cancel", `{}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	var resp platformerrors.HTTPErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Type != "invalid_request_error" {
		t.Errorf("unexpected error body: %+v", resp.Error)
	}
}

func TestRunHandler_SubmitToolOutputs(t *testing.T) {
	var got []run.ToolOutput
	service := &mockRunService{
		submitToolOutputs: func(_ context.Context, threadID, runID string, outputs []run.ToolOutput) (*run.Run, error) {
			got = outputs
			return &run.Run{PublicID: runID, Object: run.ObjectType, Status: run.StatusQueued}, nil
		},
	}
	router := newRunRouter(service)

	w := postJSON(router, "/v1/threads/thread_1/runs/run_1/submit_tool_outputs",
		`{"tool_outputs":[{"tool_call_id":"call_1","output":"42"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(got) != 1 || got[0].ToolCallID != "call_1" || got[0].Output != "42" {
		t.Errorf("outputs not forwarded: %+v", got)
	}
}

func TestRunHandler_SubmitToolOutputsRequiresBody(t *testing.T) {
	router := newRunRouter(&mockRunService{})

	w := postJSON(router, "/v1/threads/thread_1/runs/run_1/submit_tool_outputs", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
