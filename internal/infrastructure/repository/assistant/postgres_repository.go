// Package assistant provides persistence for assistant records.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "assistant-server/internal/domain/assistant"
	"assistant-server/internal/domain/page"
	"assistant-server/internal/infrastructure/database/entities"
	"assistant-server/internal/infrastructure/repository/cursor"
	"assistant-server/internal/utils/platformerrors"
)

// PostgresRepository provides persistence for assistants.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new assistant record.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Assistant) error {
	entity, err := mapToEntity(a)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map assistant to entity", err, "")
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to create assistant", err, "")
	}
	return mapFromEntity(entity, a)
}

// FindByPublicID fetches an assistant and hydrates the domain model.
func (r *PostgresRepository) FindByPublicID(ctx context.Context, publicID string) (*domain.Assistant, error) {
	var entity entities.Assistant
	if err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&entity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
				"assistant "+publicID+" not found", err, "")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to find assistant by public id", err, "")
	}

	a := &domain.Assistant{}
	if err := mapFromEntity(&entity, a); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns one page of assistants ordered by creation.
func (r *PostgresRepository) List(ctx context.Context, params page.Params) (page.Page[*domain.Assistant], error) {
	q := r.db.WithContext(ctx).Model(&entities.Assistant{})
	q, err := cursor.Apply(ctx, q, params, func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&entities.Assistant{})
	})
	if err != nil {
		return page.Page[*domain.Assistant]{}, err
	}

	var rows []entities.Assistant
	if err := q.Limit(params.Limit + 1).Find(&rows).Error; err != nil {
		return page.Page[*domain.Assistant]{}, platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError, "failed to list assistants", err, "")
	}

	out := make([]*domain.Assistant, 0, len(rows))
	for i := range rows {
		a := &domain.Assistant{}
		if err := mapFromEntity(&rows[i], a); err != nil {
			return page.Page[*domain.Assistant]{}, err
		}
		out = append(out, a)
	}
	return page.FromLookahead(out, params.Limit, func(a *domain.Assistant) string { return a.PublicID }), nil
}

// Update persists changes to an assistant.
func (r *PostgresRepository) Update(ctx context.Context, a *domain.Assistant) error {
	entity, err := mapToEntity(a)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map assistant to entity for update", err, "")
	}
	entity.ID = a.ID

	if err := r.db.WithContext(ctx).Model(&entities.Assistant{ID: a.ID}).Updates(entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to update assistant", err, "")
	}
	return nil
}

// Delete removes an assistant by public id.
func (r *PostgresRepository) Delete(ctx context.Context, publicID string) error {
	res := r.db.WithContext(ctx).Where("public_id = ?", publicID).Delete(&entities.Assistant{})
	if res.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to delete assistant", res.Error, "")
	}
	if res.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"assistant "+publicID+" not found", nil, "")
	}
	return nil
}

func mapToEntity(a *domain.Assistant) (*entities.Assistant, error) {
	tools, err := marshalJSON(a.Tools)
	if err != nil {
		return nil, fmt.Errorf("marshal tools: %w", err)
	}
	fileIDs, err := marshalJSON(a.FileIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal file ids: %w", err)
	}
	metadata, err := marshalJSON(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return &entities.Assistant{
		PublicID:     a.PublicID,
		Object:       a.Object,
		Model:        a.Model,
		Name:         a.Name,
		Description:  a.Description,
		Instructions: a.Instructions,
		Tools:        tools,
		FileIDs:      fileIDs,
		Temperature:  a.Temperature,
		TopP:         a.TopP,
		Metadata:     metadata,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}, nil
}

func mapFromEntity(entity *entities.Assistant, a *domain.Assistant) error {
	a.ID = entity.ID
	a.PublicID = entity.PublicID
	a.Object = entity.Object
	a.Model = entity.Model
	a.Name = entity.Name
	a.Description = entity.Description
	a.Instructions = entity.Instructions
	a.Temperature = entity.Temperature
	a.TopP = entity.TopP
	a.CreatedAt = entity.CreatedAt
	a.UpdatedAt = entity.UpdatedAt

	a.Tools = []domain.Tool{}
	if len(entity.Tools) > 0 {
		if err := json.Unmarshal(entity.Tools, &a.Tools); err != nil {
			return fmt.Errorf("unmarshal tools: %w", err)
		}
	}
	a.FileIDs = nil
	if len(entity.FileIDs) > 0 {
		if err := json.Unmarshal(entity.FileIDs, &a.FileIDs); err != nil {
			return fmt.Errorf("unmarshal file ids: %w", err)
		}
	}
	a.Metadata = nil
	if len(entity.Metadata) > 0 {
		if err := json.Unmarshal(entity.Metadata, &a.Metadata); err != nil {
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
