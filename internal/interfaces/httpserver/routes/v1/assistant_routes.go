package v1

import (
	"github.com/gin-gonic/gin"

	"assistant-server/internal/interfaces/httpserver/handlers"
)

func registerAssistantRoutes(router gin.IRoutes, handler *handlers.AssistantHandler) {
	router.POST("/assistants", handler.Create)
	router.GET("/assistants", handler.List)
	router.GET("/assistants/:assistant_id", handler.Get)
	router.POST("/assistants/:assistant_id", handler.Modify)
	router.DELETE("/assistants/:assistant_id", handler.Delete)
}
