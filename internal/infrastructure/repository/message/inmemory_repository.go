package message

import (
	"context"
	"sync"
	"time"

	domain "assistant-server/internal/domain/message"
	"assistant-server/internal/domain/page"
	"assistant-server/internal/infrastructure/repository/cursor"
	"assistant-server/internal/utils/platformerrors"
)

// InMemoryRepository is a thread-safe repository backed by a slice.
type InMemoryRepository struct {
	mu     sync.RWMutex
	nextID uint
	items  []*domain.Message
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextID: 1}
}

// Create stores a copy of the message.
func (r *InMemoryRepository) Create(ctx context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	m.ID = r.nextID
	r.nextID++
	m.CreatedAt = now
	m.UpdatedAt = now

	stored := *m
	r.items = append(r.items, &stored)
	return nil
}

// FindByPublicID returns a copy of the matching message scoped to a thread.
func (r *InMemoryRepository) FindByPublicID(ctx context.Context, threadID, publicID string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.items {
		if m.ThreadID == threadID && m.PublicID == publicID {
			out := *m
			return &out, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"message "+publicID+" not found in thread "+threadID, nil, "")
}

// List pages a thread's messages by insertion order.
func (r *InMemoryRepository) List(ctx context.Context, threadID string, params page.Params) (page.Page[*domain.Message], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var scoped []*domain.Message
	for _, m := range r.items {
		if m.ThreadID == threadID {
			scoped = append(scoped, m)
		}
	}

	rows, err := cursor.Window(ctx, scoped, params,
		func(m *domain.Message) uint { return m.ID },
		func(m *domain.Message) string { return m.PublicID })
	if err != nil {
		return page.Page[*domain.Message]{}, err
	}

	copies := make([]*domain.Message, len(rows))
	for i, m := range rows {
		c := *m
		copies[i] = &c
	}
	return page.FromLookahead(copies, params.Limit, func(m *domain.Message) string { return m.PublicID }), nil
}

// Update replaces the stored message.
func (r *InMemoryRepository) Update(ctx context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.items {
		if existing.PublicID == m.PublicID {
			m.ID = existing.ID
			m.CreatedAt = existing.CreatedAt
			m.UpdatedAt = time.Now()
			stored := *m
			r.items[i] = &stored
			return nil
		}
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"message "+m.PublicID+" not found", nil, "")
}

// DeleteByThread removes all messages of a thread.
func (r *InMemoryRepository) DeleteByThread(ctx context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.items[:0]
	for _, m := range r.items {
		if m.ThreadID != threadID {
			kept = append(kept, m)
		}
	}
	r.items = kept
	return nil
}
