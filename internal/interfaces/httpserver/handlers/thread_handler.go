package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"assistant-server/internal/domain/message"
	"assistant-server/internal/domain/thread"
	"assistant-server/internal/interfaces/httpserver/dto"
	"assistant-server/internal/utils/platformerrors"
)

// ThreadHandler exposes HTTP entrypoints for threads.
type ThreadHandler struct {
	service  thread.Service
	messages message.Service
	log      zerolog.Logger
}

// NewThreadHandler constructs the handler. The message service is used to
// create seed messages supplied with the thread.
func NewThreadHandler(service thread.Service, messages message.Service, log zerolog.Logger) *ThreadHandler {
	return &ThreadHandler{
		service:  service,
		messages: messages,
		log:      log.With().Str("handler", "thread").Logger(),
	}
}

// Create handles POST /v1/threads
func (h *ThreadHandler) Create(c *gin.Context) {
	var req dto.CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	t, err := h.service.Create(c.Request.Context(), req.Metadata)
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}

	for _, seed := range req.Messages {
		_, err := h.messages.Create(c.Request.Context(), t.PublicID, message.CreateParams{
			Role:     message.Role(seed.Role),
			Content:  seed.Content,
			Metadata: seed.Metadata,
		})
		if err != nil {
			platformerrors.WriteError(c, err, h.log)
			return
		}
	}

	c.JSON(http.StatusOK, t)
}

// Get handles GET /v1/threads/:thread_id
func (h *ThreadHandler) Get(c *gin.Context) {
	t, err := h.service.Get(c.Request.Context(), c.Param("thread_id"))
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, t)
}

// List handles GET /v1/threads
func (h *ThreadHandler) List(c *gin.Context) {
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

// Modify handles POST /v1/threads/:thread_id
func (h *ThreadHandler) Modify(c *gin.Context) {
	var req dto.ModifyMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	t, err := h.service.Modify(c.Request.Context(), c.Param("thread_id"), req.Metadata)
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Delete handles DELETE /v1/threads/:thread_id
func (h *ThreadHandler) Delete(c *gin.Context) {
	id := c.Param("thread_id")
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, dto.DeletedResponse{
		ID:      id,
		Object:  "thread.deleted",
		Deleted: true,
	})
}
