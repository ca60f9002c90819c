// Package message provides persistence for thread messages.
package message

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "assistant-server/internal/domain/message"
	"assistant-server/internal/domain/page"
	"assistant-server/internal/infrastructure/database/entities"
	"assistant-server/internal/infrastructure/repository/cursor"
	"assistant-server/internal/utils/platformerrors"
)

// PostgresRepository provides persistence for messages.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new message record.
func (r *PostgresRepository) Create(ctx context.Context, m *domain.Message) error {
	entity, err := mapToEntity(m)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map message to entity", err, "")
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to create message", err, "")
	}
	return mapFromEntity(entity, m)
}

// FindByPublicID fetches a message scoped to its thread.
func (r *PostgresRepository) FindByPublicID(ctx context.Context, threadID, publicID string) (*domain.Message, error) {
	var entity entities.Message
	if err := r.db.WithContext(ctx).
		Where("thread_id = ? AND public_id = ?", threadID, publicID).
		First(&entity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
				"message "+publicID+" not found in thread "+threadID, err, "")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to find message by public id", err, "")
	}

	m := &domain.Message{}
	if err := mapFromEntity(&entity, m); err != nil {
		return nil, err
	}
	return m, nil
}

// List returns one page of a thread's messages ordered by creation.
func (r *PostgresRepository) List(ctx context.Context, threadID string, params page.Params) (page.Page[*domain.Message], error) {
	q := r.db.WithContext(ctx).Model(&entities.Message{}).Where("thread_id = ?", threadID)
	q, err := cursor.Apply(ctx, q, params, func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&entities.Message{}).Where("thread_id = ?", threadID)
	})
	if err != nil {
		return page.Page[*domain.Message]{}, err
	}

	var rows []entities.Message
	if err := q.Limit(params.Limit + 1).Find(&rows).Error; err != nil {
		return page.Page[*domain.Message]{}, platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError, "failed to list messages", err, "")
	}

	out := make([]*domain.Message, 0, len(rows))
	for i := range rows {
		m := &domain.Message{}
		if err := mapFromEntity(&rows[i], m); err != nil {
			return page.Page[*domain.Message]{}, err
		}
		out = append(out, m)
	}
	return page.FromLookahead(out, params.Limit, func(m *domain.Message) string { return m.PublicID }), nil
}

// Update persists changes to a message.
func (r *PostgresRepository) Update(ctx context.Context, m *domain.Message) error {
	entity, err := mapToEntity(m)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map message to entity for update", err, "")
	}
	entity.ID = m.ID

	if err := r.db.WithContext(ctx).Model(&entities.Message{ID: m.ID}).Updates(entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to update message", err, "")
	}
	return nil
}

// DeleteByThread removes all messages of a thread.
func (r *PostgresRepository) DeleteByThread(ctx context.Context, threadID string) error {
	if err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&entities.Message{}).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to delete messages of thread "+threadID, err, "")
	}
	return nil
}

func mapToEntity(m *domain.Message) (*entities.Message, error) {
	content, err := json.Marshal(m.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	metadata, err := marshalJSON(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return &entities.Message{
		PublicID:    m.PublicID,
		Object:      m.Object,
		ThreadID:    m.ThreadID,
		Role:        string(m.Role),
		Content:     content,
		AssistantID: m.AssistantID,
		RunID:       m.RunID,
		Metadata:    metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func mapFromEntity(entity *entities.Message, m *domain.Message) error {
	m.ID = entity.ID
	m.PublicID = entity.PublicID
	m.Object = entity.Object
	m.ThreadID = entity.ThreadID
	m.Role = domain.Role(entity.Role)
	m.AssistantID = entity.AssistantID
	m.RunID = entity.RunID
	m.CreatedAt = entity.CreatedAt
	m.UpdatedAt = entity.UpdatedAt

	if err := json.Unmarshal(entity.Content, &m.Content); err != nil {
		return fmt.Errorf("unmarshal content: %w", err)
	}
	m.Metadata = nil
	if len(entity.Metadata) > 0 {
		if err := json.Unmarshal(entity.Metadata, &m.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return nil
}

func marshalJSON(value any) (datatypes.JSON, error) {
	if value == nil {
		return datatypes.JSON([]byte("null")), nil
	}
	bytes, err := json.Marshal(value)
	return datatypes.JSON(bytes), err
}
