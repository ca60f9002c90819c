package thread

import (
	"context"

	"assistant-server/internal/domain/page"
)

// Repository defines persistence operations for threads.
type Repository interface {
	Create(ctx context.Context, t *Thread) error
	FindByPublicID(ctx context.Context, publicID string) (*Thread, error)
	List(ctx context.Context, params page.Params) (page.Page[*Thread], error)
	Update(ctx context.Context, t *Thread) error
	Delete(ctx context.Context, publicID string) error
}
