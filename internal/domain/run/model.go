package run

import (
	"time"

	"assistant-server/internal/domain/assistant"
	"assistant-server/internal/domain/llm"
)

// Object discriminators for runs and run steps.
const (
	ObjectType     = "thread.run"
	StepObjectType = "thread.run.step"
)

// Error types carried by LastError, mirroring the OpenAI error taxonomy.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeServer         = "server_error"
	ErrorTypeToolNotFound   = "tool_not_found"
	ErrorTypeLLM            = "llm_error"
)

// Run is one agent execution over a thread.
type Run struct {
	ID             uint             `json:"-"`
	PublicID       string           `json:"id"`
	Object         string           `json:"object"`
	ThreadID       string           `json:"thread_id"`
	AssistantID    string           `json:"assistant_id"`
	Model          string           `json:"model"`
	Instructions   string           `json:"instructions,omitempty"`
	Tools          []assistant.Tool `json:"tools"`
	Status         Status           `json:"status"`
	RequiredAction *RequiredAction  `json:"required_action,omitempty"`
	LastError      *LastError       `json:"last_error,omitempty"`
	Temperature    *float64         `json:"temperature,omitempty"`
	TopP           *float64         `json:"top_p,omitempty"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"-"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	CancelledAt    *time.Time       `json:"cancelled_at,omitempty"`
	FailedAt       *time.Time       `json:"failed_at,omitempty"`
	ExpiredAt      *time.Time       `json:"expired_at,omitempty"`
}

// RequiredAction describes what a suspended run is waiting for.
type RequiredAction struct {
	Type              string                   `json:"type"`
	SubmitToolOutputs *SubmitToolOutputsAction `json:"submit_tool_outputs,omitempty"`
}

// RequiredActionSubmitToolOutputs is the only required_action type.
const RequiredActionSubmitToolOutputs = "submit_tool_outputs"

// SubmitToolOutputsAction lists the tool calls still lacking outputs.
type SubmitToolOutputsAction struct {
	ToolCalls []llm.ToolCall `json:"tool_calls"`
}

// LastError carries machine readable failure info surfaced to clients.
type LastError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StepType discriminates run step payloads.
type StepType string

const (
	StepTypeMessageCreation StepType = "message_creation"
	StepTypeToolCalls       StepType = "tool_calls"
)

// Step is a durable record of one unit of agent progress.
type Step struct {
	ID          uint        `json:"-"`
	PublicID    string      `json:"id"`
	Object      string      `json:"object"`
	RunID       string      `json:"run_id"`
	ThreadID    string      `json:"thread_id"`
	AssistantID string      `json:"assistant_id"`
	Type        StepType    `json:"type"`
	Status      StepStatus  `json:"status"`
	StepDetails StepDetails `json:"step_details"`
	LastError   *LastError  `json:"last_error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"-"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	FailedAt    *time.Time  `json:"failed_at,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time  `json:"expired_at,omitempty"`
}

// StepDetails is type-discriminated by the step type.
type StepDetails struct {
	Type            StepType                `json:"type"`
	MessageCreation *MessageCreationDetails `json:"message_creation,omitempty"`
	ToolCalls       []ToolCallDetail        `json:"tool_calls,omitempty"`
}

// MessageCreationDetails links a step to the message it produced.
type MessageCreationDetails struct {
	MessageID string `json:"message_id"`
}

// ToolCallDetail records one tool call request and, once available, its
// output.
type ToolCallDetail struct {
	ID       string             `json:"id"`
	Type     assistant.ToolType `json:"type"`
	Function FunctionCallDetail `json:"function"`
}

// FunctionCallDetail is the function payload of a tool call detail.
type FunctionCallDetail struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output,omitempty"`
}

// UnresolvedToolCalls returns the tool calls that still lack an output, in
// request order.
func (s *Step) UnresolvedToolCalls() []llm.ToolCall {
	var out []llm.ToolCall
	for _, tc := range s.StepDetails.ToolCalls {
		if tc.Function.Output != "" {
			continue
		}
		out = append(out, llm.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: llm.ToolFunction{
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			},
		})
	}
	return out
}
