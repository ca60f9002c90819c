package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"assistant-server/internal/domain/message"
	"assistant-server/internal/interfaces/httpserver/dto"
	"assistant-server/internal/utils/platformerrors"
)

// MessageHandler exposes HTTP entrypoints for thread messages.
type MessageHandler struct {
	service message.Service
	log     zerolog.Logger
}

// NewMessageHandler constructs the handler.
func NewMessageHandler(service message.Service, log zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		service: service,
		log:     log.With().Str("handler", "message").Logger(),
	}
}

// Create handles POST /v1/threads/:thread_id/messages
func (h *MessageHandler) Create(c *gin.Context) {
	var req dto.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	m, err := h.service.Create(c.Request.Context(), c.Param("thread_id"), message.CreateParams{
		Role:     message.Role(req.Role),
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Get handles GET /v1/threads/:thread_id/messages/:message_id
func (h *MessageHandler) Get(c *gin.Context) {
	m, err := h.service.Get(c.Request.Context(), c.Param("thread_id"), c.Param("message_id"))
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, m)
}

// List handles GET /v1/threads/:thread_id/messages
func (h *MessageHandler) List(c *gin.Context) {
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

// Modify handles POST /v1/threads/:thread_id/messages/:message_id
func (h *MessageHandler) Modify(c *gin.Context) {
	var req dto.ModifyMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	m, err := h.service.Modify(c.Request.Context(), c.Param("thread_id"), c.Param("message_id"), req.Metadata)
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, m)
}
