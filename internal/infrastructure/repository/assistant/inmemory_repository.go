package assistant

import (
	"context"
	"sync"
	"time"

	domain "assistant-server/internal/domain/assistant"
	"assistant-server/internal/domain/page"
	"assistant-server/internal/infrastructure/repository/cursor"
	"assistant-server/internal/utils/platformerrors"
)

// InMemoryRepository is a thread-safe repository backed by a slice. Used
// when no database is configured, and by tests.
type InMemoryRepository struct {
	mu     sync.RWMutex
	nextID uint
	items  []*domain.Assistant
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextID: 1}
}

// Create stores a copy of the assistant.
func (r *InMemoryRepository) Create(ctx context.Context, a *domain.Assistant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	a.ID = r.nextID
	r.nextID++
	a.CreatedAt = now
	a.UpdatedAt = now

	stored := *a
	r.items = append(r.items, &stored)
	return nil
}

// FindByPublicID returns a copy of the matching assistant.
func (r *InMemoryRepository) FindByPublicID(ctx context.Context, publicID string) (*domain.Assistant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.items {
		if a.PublicID == publicID {
			out := *a
			return &out, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"assistant "+publicID+" not found", nil, "")
}

// List pages the assistants by insertion order.
func (r *InMemoryRepository) List(ctx context.Context, params page.Params) (page.Page[*domain.Assistant], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := cursor.Window(ctx, r.items, params,
		func(a *domain.Assistant) uint { return a.ID },
		func(a *domain.Assistant) string { return a.PublicID })
	if err != nil {
		return page.Page[*domain.Assistant]{}, err
	}

	copies := make([]*domain.Assistant, len(rows))
	for i, a := range rows {
		c := *a
		copies[i] = &c
	}
	return page.FromLookahead(copies, params.Limit, func(a *domain.Assistant) string { return a.PublicID }), nil
}

// Update replaces the stored assistant.
func (r *InMemoryRepository) Update(ctx context.Context, a *domain.Assistant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.items {
		if existing.PublicID == a.PublicID {
			a.ID = existing.ID
			a.CreatedAt = existing.CreatedAt
			a.UpdatedAt = time.Now()
			stored := *a
			r.items[i] = &stored
			return nil
		}
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"assistant "+a.PublicID+" not found", nil, "")
}

// Delete removes the assistant.
func (r *InMemoryRepository) Delete(ctx context.Context, publicID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, a := range r.items {
		if a.PublicID == publicID {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"assistant "+publicID+" not found", nil, "")
}
