package assistant

import (
	"encoding/json"
	"time"
)

// ToolType discriminates the assistant tool union.
type ToolType string

const (
	ToolTypeFunction        ToolType = "function"
	ToolTypeCodeInterpreter ToolType = "code_interpreter"
	ToolTypeFileSearch      ToolType = "file_search"
)

// Tool is the tagged union carried by assistants and runs. Only function
// tools have a payload; code_interpreter and file_search are built-in.
type Tool struct {
	Type     ToolType            `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`
}

// FunctionDefinition declares a user-supplied function tool.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Assistant is a persistent configuration bundle reused across runs.
type Assistant struct {
	ID           uint           `json:"-"`
	PublicID     string         `json:"id"`
	Object       string         `json:"object"`
	Model        string         `json:"model"`
	Name         *string        `json:"name,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
	Tools        []Tool         `json:"tools"`
	FileIDs      []string       `json:"file_ids,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty"`
	TopP         *float64       `json:"top_p,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"-"`
}

// ObjectType is the OpenAI object discriminator for assistants.
const ObjectType = "assistant"

// FunctionTools returns only the function-typed tools, de-duplicated on
// name keeping the first occurrence.
func FunctionTools(tools []Tool) []FunctionDefinition {
	seen := make(map[string]struct{}, len(tools))
	var out []FunctionDefinition
	for _, t := range tools {
		if t.Type != ToolTypeFunction || t.Function == nil {
			continue
		}
		if _, ok := seen[t.Function.Name]; ok {
			continue
		}
		seen[t.Function.Name] = struct{}{}
		out = append(out, *t.Function)
	}
	return out
}
