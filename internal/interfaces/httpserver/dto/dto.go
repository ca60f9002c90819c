// Package dto defines the HTTP request and response shapes of the API.
package dto

import (
	"assistant-server/internal/domain/assistant"
	"assistant-server/internal/domain/page"
)

// ListQuery carries cursor pagination query parameters.
type ListQuery struct {
	Limit  int    `form:"limit"`
	Order  string `form:"order"`
	After  string `form:"after"`
	Before string `form:"before"`
}

// ToParams converts the query into domain pagination params.
func (q ListQuery) ToParams() page.Params {
	return page.Params{
		Order:  page.Order(q.Order),
		After:  q.After,
		Before: q.Before,
		Limit:  q.Limit,
	}.Normalize()
}

// ListResponse is the OpenAI-style list envelope.
type ListResponse struct {
	Object  string `json:"object"`
	Data    any    `json:"data"`
	FirstID string `json:"first_id,omitempty"`
	LastID  string `json:"last_id,omitempty"`
	HasMore bool   `json:"has_more"`
}

// NewListResponse wraps a page into the list envelope.
func NewListResponse[T any](p page.Page[T]) ListResponse {
	data := p.Data
	if data == nil {
		data = []T{}
	}
	return ListResponse{
		Object:  "list",
		Data:    data,
		FirstID: p.FirstID,
		LastID:  p.LastID,
		HasMore: p.HasMore,
	}
}

// DeletedResponse acknowledges a delete.
type DeletedResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// CreateAssistantRequest is the body of POST /v1/assistants.
type CreateAssistantRequest struct {
	Model        string           `json:"model" binding:"required"`
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Instructions string           `json:"instructions"`
	Tools        []assistant.Tool `json:"tools"`
	FileIDs      []string         `json:"file_ids"`
	Temperature  *float64         `json:"temperature"`
	TopP         *float64         `json:"top_p"`
	Metadata     map[string]any   `json:"metadata"`
}

// ModifyAssistantRequest is the body of POST /v1/assistants/:id. Absent
// fields keep their stored value.
type ModifyAssistantRequest struct {
	Model        *string          `json:"model"`
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Instructions *string          `json:"instructions"`
	Tools        []assistant.Tool `json:"tools"`
	FileIDs      []string         `json:"file_ids"`
	Metadata     map[string]any   `json:"metadata"`
}

// CreateThreadRequest is the body of POST /v1/threads. Seed messages are
// created in order after the thread.
type CreateThreadRequest struct {
	Messages []CreateMessageRequest `json:"messages"`
	Metadata map[string]any         `json:"metadata"`
}

// ModifyMetadataRequest is shared by the metadata-only modify endpoints.
type ModifyMetadataRequest struct {
	Metadata map[string]any `json:"metadata"`
}

// CreateMessageRequest is the body of POST /v1/threads/:id/messages.
type CreateMessageRequest struct {
	Role     string         `json:"role" binding:"required"`
	Content  string         `json:"content" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}

// CreateRunRequest is the body of POST /v1/threads/:id/runs. Absent fields
// inherit from the assistant.
type CreateRunRequest struct {
	AssistantID            string           `json:"assistant_id" binding:"required"`
	Model                  *string          `json:"model"`
	Instructions           *string          `json:"instructions"`
	AdditionalInstructions *string          `json:"additional_instructions"`
	Tools                  []assistant.Tool `json:"tools"`
	Temperature            *float64         `json:"temperature"`
	TopP                   *float64         `json:"top_p"`
	Metadata               map[string]any   `json:"metadata"`
}

// CreateThreadAndRunRequest is the body of POST /v1/threads/runs.
type CreateThreadAndRunRequest struct {
	AssistantID  string               `json:"assistant_id" binding:"required"`
	Thread       *CreateThreadRequest `json:"thread"`
	Model        *string              `json:"model"`
	Instructions *string              `json:"instructions"`
	Tools        []assistant.Tool     `json:"tools"`
	Temperature  *float64             `json:"temperature"`
	TopP         *float64             `json:"top_p"`
	Metadata     map[string]any       `json:"metadata"`
}

// SubmitToolOutputsRequest is the body of
// POST /v1/threads/:id/runs/:rid/submit_tool_outputs.
type SubmitToolOutputsRequest struct {
	ToolOutputs []ToolOutputRequest `json:"tool_outputs" binding:"required"`
}

// ToolOutputRequest is one client supplied tool result.
type ToolOutputRequest struct {
	ToolCallID string `json:"tool_call_id" binding:"required"`
	Output     string `json:"output"`
}
