package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"assistant-server/internal/domain/assistant"
	"assistant-server/internal/interfaces/httpserver/dto"
	"assistant-server/internal/utils/platformerrors"
)

// AssistantHandler exposes HTTP entrypoints for assistants.
type AssistantHandler struct {
	service assistant.Service
	log     zerolog.Logger
}

// NewAssistantHandler constructs the handler.
func NewAssistantHandler(service assistant.Service, log zerolog.Logger) *AssistantHandler {
	return &AssistantHandler{
		service: service,
		log:     log.With().Str("handler", "assistant").Logger(),
	}
}

// Create handles POST /v1/assistants
func (h *AssistantHandler) Create(c *gin.Context) {
	var req dto.CreateAssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	a, err := h.service.Create(c.Request.Context(), assistant.CreateParams{
		Model:        req.Model,
		Name:         req.Name,
		Description:  req.Description,
		Instructions: req.Instructions,
		Tools:        req.Tools,
		FileIDs:      req.FileIDs,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		Metadata:     req.Metadata,
	})
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Get handles GET /v1/assistants/:assistant_id
func (h *AssistantHandler) Get(c *gin.Context) {
	a, err := h.service.Get(c.Request.Context(), c.Param("assistant_id"))
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, a)
}

// List handles GET /v1/assistants
func (h *AssistantHandler) List(c *gin.Context) {
	var query dto.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	pg, err := h.service.List(c.Request.Context(), query.ToParams())
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(pg))
}

// Modify handles POST /v1/assistants/:assistant_id
func (h *AssistantHandler) Modify(c *gin.Context) {
	var req dto.ModifyAssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	a, err := h.service.Modify(c.Request.Context(), c.Param("assistant_id"), assistant.ModifyParams{
		Model:        req.Model,
		Name:         req.Name,
		Description:  req.Description,
		Instructions: req.Instructions,
		Tools:        req.Tools,
		FileIDs:      req.FileIDs,
		Metadata:     req.Metadata,
	})
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Delete handles DELETE /v1/assistants/:assistant_id
func (h *AssistantHandler) Delete(c *gin.Context) {
	id := c.Param("assistant_id")
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, dto.DeletedResponse{
		ID:      id,
		Object:  "assistant.deleted",
		Deleted: true,
	})
}
