package message

import (
	"context"

	"assistant-server/internal/domain/page"
)

// Repository defines persistence operations for thread messages.
type Repository interface {
	Create(ctx context.Context, m *Message) error
	FindByPublicID(ctx context.Context, threadID, publicID string) (*Message, error)
	List(ctx context.Context, threadID string, params page.Params) (page.Page[*Message], error)
	Update(ctx context.Context, m *Message) error
	DeleteByThread(ctx context.Context, threadID string) error
}
