package assistant

import (
	"context"

	"assistant-server/internal/domain/page"
)

// Repository defines persistence operations for assistants.
type Repository interface {
	Create(ctx context.Context, a *Assistant) error
	FindByPublicID(ctx context.Context, publicID string) (*Assistant, error)
	List(ctx context.Context, params page.Params) (page.Page[*Assistant], error)
	Update(ctx context.Context, a *Assistant) error
	Delete(ctx context.Context, publicID string) error
}
