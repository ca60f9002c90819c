package thread

import (
	"context"
	"sync"
	"time"

	"assistant-server/internal/domain/page"
	domain "assistant-server/internal/domain/thread"
	"assistant-server/internal/infrastructure/repository/cursor"
	"assistant-server/internal/utils/platformerrors"
)

// InMemoryRepository is a thread-safe repository backed by a slice.
type InMemoryRepository struct {
	mu     sync.RWMutex
	nextID uint
	items  []*domain.Thread
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextID: 1}
}

// Create stores a copy of the thread.
func (r *InMemoryRepository) Create(ctx context.Context, t *domain.Thread) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	t.ID = r.nextID
	r.nextID++
	t.CreatedAt = now
	t.UpdatedAt = now

	stored := *t
	r.items = append(r.items, &stored)
	return nil
}

// FindByPublicID returns a copy of the matching thread.
func (r *InMemoryRepository) FindByPublicID(ctx context.Context, publicID string) (*domain.Thread, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.items {
		if t.PublicID == publicID {
			out := *t
			return &out, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"thread "+publicID+" not found", nil, "")
}

// List pages the threads by insertion order.
func (r *InMemoryRepository) List(ctx context.Context, params page.Params) (page.Page[*domain.Thread], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := cursor.Window(ctx, r.items, params,
		func(t *domain.Thread) uint { return t.ID },
		func(t *domain.Thread) string { return t.PublicID })
	if err != nil {
		return page.Page[*domain.Thread]{}, err
	}

	copies := make([]*domain.Thread, len(rows))
	for i, t := range rows {
		c := *t
		copies[i] = &c
	}
	return page.FromLookahead(copies, params.Limit, func(t *domain.Thread) string { return t.PublicID }), nil
}

// Update replaces the stored thread.
func (r *InMemoryRepository) Update(ctx context.Context, t *domain.Thread) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.items {
		if existing.PublicID == t.PublicID {
			t.ID = existing.ID
			t.CreatedAt = existing.CreatedAt
			t.UpdatedAt = time.Now()
			stored := *t
			r.items[i] = &stored
			return nil
		}
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"thread "+t.PublicID+" not found", nil, "")
}

// Delete removes the thread.
func (r *InMemoryRepository) Delete(ctx context.Context, publicID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, t := range r.items {
		if t.PublicID == publicID {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"thread "+publicID+" not found", nil, "")
}
