package v1

import (
	"github.com/gin-gonic/gin"

	"assistant-server/internal/interfaces/httpserver/handlers"
)

func registerThreadRoutes(router gin.IRoutes, threads *handlers.ThreadHandler,
	messages *handlers.MessageHandler, runs *handlers.RunHandler) {

	// The static /threads/runs path must not shadow /threads/:thread_id;
	// gin resolves static segments before params.
	router.POST("/threads/runs", runs.CreateThreadAndRun)

	router.POST("/threads", threads.Create)
	router.GET("/threads", threads.List)
	router.GET("/threads/:thread_id", threads.Get)
	router.POST("/threads/:thread_id", threads.Modify)
	router.DELETE("/threads/:thread_id", threads.Delete)

	router.POST("/threads/:thread_id/messages", messages.Create)
	router.GET("/threads/:thread_id/messages", messages.List)
	router.GET("/threads/:thread_id/messages/:message_id", messages.Get)
	router.POST("/threads/:thread_id/messages/:message_id", messages.Modify)

	router.POST("/threads/:thread_id/runs", runs.Create)
	router.GET("/threads/:thread_id/runs", runs.List)
	router.GET("/threads/:thread_id/runs/:run_id", runs.Get)
	router.POST("/threads/:thread_id/runs/:run_id", runs.Modify)
	router.POST("/threads/:thread_id/runs/:run_id/cancel", runs.Cancel)
	router.POST("/threads/:thread_id/runs/:run_id/submit_tool_outputs", runs.SubmitToolOutputs)
	router.GET("/threads/:thread_id/runs/:run_id/steps", runs.ListSteps)
	router.GET("/threads/:thread_id/runs/:run_id/steps/:step_id", runs.GetStep)
}
