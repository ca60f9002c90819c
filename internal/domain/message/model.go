package message

import "time"

// ObjectType is the OpenAI object discriminator for thread messages.
const ObjectType = "thread.message"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a thread. Immutable after create except
// metadata.
type Message struct {
	ID          uint           `json:"-"`
	PublicID    string         `json:"id"`
	Object      string         `json:"object"`
	ThreadID    string         `json:"thread_id"`
	Role        Role           `json:"role"`
	Content     []ContentPart  `json:"content"`
	AssistantID *string        `json:"assistant_id,omitempty"`
	RunID       *string        `json:"run_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"-"`
}

// ContentPart is the OpenAI message content union; only text is supported.
type ContentPart struct {
	Type string       `json:"type"`
	Text *TextContent `json:"text,omitempty"`
}

// TextContent carries the text payload of a content part.
type TextContent struct {
	Value       string `json:"value"`
	Annotations []any  `json:"annotations"`
}

// TextParts wraps a plain string into the content part list.
func TextParts(value string) []ContentPart {
	return []ContentPart{{
		Type: "text",
		Text: &TextContent{Value: value, Annotations: []any{}},
	}}
}

// TextValue returns the first text part's value, or "".
func (m *Message) TextValue() string {
	for _, part := range m.Content {
		if part.Type == "text" && part.Text != nil {
			return part.Text.Value
		}
	}
	return ""
}
