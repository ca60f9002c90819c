// Package thread provides persistence for thread records.
package thread

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"assistant-server/internal/domain/page"
	domain "assistant-server/internal/domain/thread"
	"assistant-server/internal/infrastructure/database/entities"
	"assistant-server/internal/infrastructure/repository/cursor"
	"assistant-server/internal/utils/platformerrors"
)

// PostgresRepository provides persistence for threads.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new thread record.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Thread) error {
	entity, err := mapToEntity(t)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map thread to entity", err, "")
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to create thread", err, "")
	}
	return mapFromEntity(entity, t)
}

// FindByPublicID fetches a thread and hydrates the domain model.
func (r *PostgresRepository) FindByPublicID(ctx context.Context, publicID string) (*domain.Thread, error) {
	var entity entities.Thread
	if err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&entity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
				"thread "+publicID+" not found", err, "")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to find thread by public id", err, "")
	}

	t := &domain.Thread{}
	if err := mapFromEntity(&entity, t); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns one page of threads ordered by creation.
func (r *PostgresRepository) List(ctx context.Context, params page.Params) (page.Page[*domain.Thread], error) {
	q := r.db.WithContext(ctx).Model(&entities.Thread{})
	q, err := cursor.Apply(ctx, q, params, func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&entities.Thread{})
	})
	if err != nil {
		return page.Page[*domain.Thread]{}, err
	}

	var rows []entities.Thread
	if err := q.Limit(params.Limit + 1).Find(&rows).Error; err != nil {
		return page.Page[*domain.Thread]{}, platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError, "failed to list threads", err, "")
	}

	out := make([]*domain.Thread, 0, len(rows))
	for i := range rows {
		t := &domain.Thread{}
		if err := mapFromEntity(&rows[i], t); err != nil {
			return page.Page[*domain.Thread]{}, err
		}
		out = append(out, t)
	}
	return page.FromLookahead(out, params.Limit, func(t *domain.Thread) string { return t.PublicID }), nil
}

// Update persists changes to a thread.
func (r *PostgresRepository) Update(ctx context.Context, t *domain.Thread) error {
	entity, err := mapToEntity(t)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map thread to entity for update", err, "")
	}
	entity.ID = t.ID

	if err := r.db.WithContext(ctx).Model(&entities.Thread{ID: t.ID}).Updates(entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to update thread", err, "")
	}
	return nil
}

// Delete removes a thread by public id.
func (r *PostgresRepository) Delete(ctx context.Context, publicID string) error {
	res := r.db.WithContext(ctx).Where("public_id = ?", publicID).Delete(&entities.Thread{})
	if res.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to delete thread", res.Error, "")
	}
	if res.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"thread "+publicID+" not found", nil, "")
	}
	return nil
}

func mapToEntity(t *domain.Thread) (*entities.Thread, error) {
	metadata, err := marshalJSON(t.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return &entities.Thread{
		PublicID:  t.PublicID,
		Object:    t.Object,
		Metadata:  metadata,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}, nil
}

func mapFromEntity(entity *entities.Thread, t *domain.Thread) error {
	t.ID = entity.ID
	t.PublicID = entity.PublicID
	t.Object = entity.Object
	t.CreatedAt = entity.CreatedAt
	t.UpdatedAt = entity.UpdatedAt

	t.Metadata = nil
	if len(entity.Metadata) > 0 {
		if err := json.Unmarshal(entity.Metadata, &t.Metadata); err != nil {
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
