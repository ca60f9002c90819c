package handlers

import (
	"github.com/rs/zerolog"

	"assistant-server/internal/domain/assistant"
	"assistant-server/internal/domain/message"
	"assistant-server/internal/domain/run"
	"assistant-server/internal/domain/thread"
)

// Provider wires all HTTP handlers for dependency injection.
type Provider struct {
	Assistant *AssistantHandler
	Thread    *ThreadHandler
	Message   *MessageHandler
	Run       *RunHandler
}

// NewProvider constructs the handler provider with domain services.
func NewProvider(
	assistantService assistant.Service,
	threadService thread.Service,
	messageService message.Service,
	runService run.Service,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Assistant: NewAssistantHandler(assistantService, log),
		Thread:    NewThreadHandler(threadService, messageService, log),
		Message:   NewMessageHandler(messageService, log),
		Run:       NewRunHandler(runService, log),
	}
}
