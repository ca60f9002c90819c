package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"assistant-server/internal/domain/message"
	"assistant-server/internal/domain/run"
	"assistant-server/internal/interfaces/httpserver/dto"
	"assistant-server/internal/utils/platformerrors"
)

// RunHandler exposes HTTP entrypoints for runs and run steps.
type RunHandler struct {
	service run.Service
	log     zerolog.Logger
}

// NewRunHandler constructs the handler.
func NewRunHandler(service run.Service, log zerolog.Logger) *RunHandler {
	return &RunHandler{
		service: service,
		log:     log.With().Str("handler", "run").Logger(),
	}
}

// Create handles POST /v1/threads/:thread_id/runs
func (h *RunHandler) Create(c *gin.Context) {
	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	r, err := h.service.Create(c.Request.Context(), c.Param("thread_id"), run.CreateParams{
		AssistantID:            req.AssistantID,
		Model:                  req.Model,
		Instructions:           req.Instructions,
		AdditionalInstructions: req.AdditionalInstructions,
		Tools:                  req.Tools,
		Temperature:            req.Temperature,
		TopP:                   req.TopP,
		Metadata:               req.Metadata,
	})
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, r)
}

// CreateThreadAndRun handles POST /v1/threads/runs
func (h *RunHandler) CreateThreadAndRun(c *gin.Context) {
	var req dto.CreateThreadAndRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	params := run.CreateThreadAndRunParams{
		Run: run.CreateParams{
			AssistantID:  req.AssistantID,
			Model:        req.Model,
			Instructions: req.Instructions,
			Tools:        req.Tools,
			Temperature:  req.Temperature,
			TopP:         req.TopP,
			Metadata:     req.Metadata,
		},
	}
	if req.Thread != nil {
		params.ThreadMetadata = req.Thread.Metadata
		for _, seed := range req.Thread.Messages {
			params.Messages = append(params.Messages, run.SeedMessage{
				Role:     message.Role(seed.Role),
				Content:  seed.Content,
				Metadata: seed.Metadata,
			})
		}
	}

	r, err := h.service.CreateThreadAndRun(c.Request.Context(), params)
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Get handles GET /v1/threads/:thread_id/runs/:run_id
func (h *RunHandler) Get(c *gin.Context) {
	r, err := h.service.Get(c.Request.Context(), c.Param("thread_id"), c.Param("run_id"))
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, r)
}

// List handles GET /v1/threads/:thread_id/runs
func (h *RunHandler) List(c *gin.Context) {
	var query dto.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	pg, err := h.service.List(c.Request.Context(), c.Param("thread_id"), query.ToParams())
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(pg))
}

// Modify handles POST /v1/threads/:thread_id/runs/:run_id
func (h *RunHandler) Modify(c *gin.Context) {
	var req dto.ModifyMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	r, err := h.service.Modify(c.Request.Context(), c.Param("thread_id"), c.Param("run_id"), req.Metadata)
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Cancel handles POST /v1/threads/:thread_id/runs/:run_id/cancel
func (h *RunHandler) Cancel(c *gin.Context) {
	r, err := h.service.Cancel(c.Request.Context(), c.Param("thread_id"), c.Param("run_id"))
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, r)
}

// SubmitToolOutputs handles POST /v1/threads/:thread_id/runs/:run_id/submit_tool_outputs
func (h *RunHandler) SubmitToolOutputs(c *gin.Context) {
	var req dto.SubmitToolOutputsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	outputs := make([]run.ToolOutput, 0, len(req.ToolOutputs))
	for _, o := range req.ToolOutputs {
		outputs = append(outputs, run.ToolOutput{
			ToolCallID: o.ToolCallID,
			Output:     o.Output,
		})
	}

	r, err := h.service.SubmitToolOutputs(c.Request.Context(), c.Param("thread_id"), c.Param("run_id"), outputs)
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, r)
}

// ListSteps handles GET /v1/threads/:thread_id/runs/:run_id/steps
func (h *RunHandler) ListSteps(c *gin.Context) {
	var query dto.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	pg, err := h.service.ListSteps(c.Request.Context(), c.Param("thread_id"), c.Param("run_id"), query.ToParams())
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(pg))
}

// GetStep handles GET /v1/threads/:thread_id/runs/:run_id/steps/:step_id
func (h *RunHandler) GetStep(c *gin.Context) {
	s, err := h.service.GetStep(c.Request.Context(), c.Param("thread_id"), c.Param("run_id"), c.Param("step_id"))
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, s)
}
