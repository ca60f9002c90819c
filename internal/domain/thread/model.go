package thread

import "time"

// ObjectType is the OpenAI object discriminator for threads.
const ObjectType = "thread"

// Thread is an ordered conversation container owning messages.
type Thread struct {
	ID        uint           `json:"-"`
	PublicID  string         `json:"id"`
	Object    string         `json:"object"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"-"`
}
