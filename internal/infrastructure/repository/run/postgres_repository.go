// Package run provides persistence for runs and run steps, including the
// guarded status updates that serialize run workers.
package run

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"assistant-server/internal/domain/page"
	domain "assistant-server/internal/domain/run"
	"assistant-server/internal/infrastructure/database/entities"
	"assistant-server/internal/infrastructure/repository/cursor"
	"assistant-server/internal/utils/platformerrors"
)

// PostgresRepository provides persistence for runs and run steps.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateRun inserts a new run record.
func (r *PostgresRepository) CreateRun(ctx context.Context, ru *domain.Run) error {
	entity, err := mapRunToEntity(ru)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map run to entity", err, "")
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to create run", err, "")
	}
	return mapRunFromEntity(entity, ru)
}

// FindRunByPublicID fetches a run scoped to its thread.
func (r *PostgresRepository) FindRunByPublicID(ctx context.Context, threadID, publicID string) (*domain.Run, error) {
	var entity entities.Run
	if err := r.db.WithContext(ctx).
		Where("thread_id = ? AND public_id = ?", threadID, publicID).
		First(&entity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
				"run "+publicID+" not found in thread "+threadID, err, "")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to find run by public id", err, "")
	}

	ru := &domain.Run{}
	if err := mapRunFromEntity(&entity, ru); err != nil {
		return nil, err
	}
	return ru, nil
}

// ListRuns returns one page of a thread's runs ordered by creation.
func (r *PostgresRepository) ListRuns(ctx context.Context, threadID string, params page.Params) (page.Page[*domain.Run], error) {
	q := r.db.WithContext(ctx).Model(&entities.Run{}).Where("thread_id = ?", threadID)
	q, err := cursor.Apply(ctx, q, params, func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&entities.Run{}).Where("thread_id = ?", threadID)
	})
	if err != nil {
		return page.Page[*domain.Run]{}, err
	}

	var rows []entities.Run
	if err := q.Limit(params.Limit + 1).Find(&rows).Error; err != nil {
		return page.Page[*domain.Run]{}, platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError, "failed to list runs", err, "")
	}

	out := make([]*domain.Run, 0, len(rows))
	for i := range rows {
		ru := &domain.Run{}
		if err := mapRunFromEntity(&rows[i], ru); err != nil {
			return page.Page[*domain.Run]{}, err
		}
		out = append(out, ru)
	}
	return page.FromLookahead(out, params.Limit, func(ru *domain.Run) string { return ru.PublicID }), nil
}

// ListRunsByStatus returns every run currently in one of the statuses,
// oldest first. Used by startup requeue and the expiry janitor.
func (r *PostgresRepository) ListRunsByStatus(ctx context.Context, statuses []domain.Status) ([]*domain.Run, error) {
	vals := make([]string, 0, len(statuses))
	for _, s := range statuses {
		vals = append(vals, s.String())
	}

	var rows []entities.Run
	if err := r.db.WithContext(ctx).
		Where("status IN ?", vals).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list runs by status", err, "")
	}

	out := make([]*domain.Run, 0, len(rows))
	for i := range rows {
		ru := &domain.Run{}
		if err := mapRunFromEntity(&rows[i], ru); err != nil {
			return nil, err
		}
		out = append(out, ru)
	}
	return out, nil
}

// UpdateRun persists non-status changes to a run.
func (r *PostgresRepository) UpdateRun(ctx context.Context, ru *domain.Run) error {
	entity, err := mapRunToEntity(ru)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map run to entity for update", err, "")
	}
	entity.ID = ru.ID

	if err := r.db.WithContext(ctx).Model(&entities.Run{ID: ru.ID}).Updates(entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to update run", err, "")
	}
	return nil
}

// UpdateRunStatusGuarded performs the conditional UPDATE that serializes
// status transitions: the row only changes when its status is still in
// `from`. RowsAffected == 0 on an existing run means the guard missed.
func (r *PostgresRepository) UpdateRunStatusGuarded(ctx context.Context, threadID, publicID string,
	from []domain.Status, to domain.Status, patch domain.StatusPatch) (*domain.Run, error) {

	updates := map[string]any{"status": to.String()}
	if patch.RequiredAction != nil {
		raw, err := json.Marshal(patch.RequiredAction)
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
				"failed to marshal required action", err, "")
		}
		updates["required_action"] = datatypes.JSON(raw)
	} else if patch.ClearRequired {
		updates["required_action"] = nil
	}
	if patch.LastError != nil {
		raw, err := json.Marshal(patch.LastError)
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
				"failed to marshal last error", err, "")
		}
		updates["last_error"] = datatypes.JSON(raw)
	}
	if patch.StartedAt != nil {
		updates["started_at"] = *patch.StartedAt
	}
	if patch.CompletedAt != nil {
		updates["completed_at"] = *patch.CompletedAt
	}
	if patch.CancelledAt != nil {
		updates["cancelled_at"] = *patch.CancelledAt
	}
	if patch.FailedAt != nil {
		updates["failed_at"] = *patch.FailedAt
	}
	if patch.ExpiredAt != nil {
		updates["expired_at"] = *patch.ExpiredAt
	}

	fromVals := make([]string, 0, len(from))
	for _, s := range from {
		fromVals = append(fromVals, s.String())
	}

	res := r.db.WithContext(ctx).Model(&entities.Run{}).
		Where("thread_id = ? AND public_id = ? AND status IN ?", threadID, publicID, fromVals).
		Updates(updates)
	if res.Error != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to update run status", res.Error, "")
	}
	if res.RowsAffected == 0 {
		// Either the run does not exist or another actor changed its status.
		if _, err := r.FindRunByPublicID(ctx, threadID, publicID); err != nil {
			return nil, err
		}
		return nil, domain.ErrStatusGuard
	}

	return r.FindRunByPublicID(ctx, threadID, publicID)
}

// CreateRunStep inserts a new run step record.
func (r *PostgresRepository) CreateRunStep(ctx context.Context, s *domain.Step) error {
	entity, err := mapStepToEntity(s)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map run step to entity", err, "")
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to create run step", err, "")
	}
	return mapStepFromEntity(entity, s)
}

// FindStepByPublicID fetches a run step scoped to its run.
func (r *PostgresRepository) FindStepByPublicID(ctx context.Context, runID, publicID string) (*domain.Step, error) {
	var entity entities.RunStep
	if err := r.db.WithContext(ctx).
		Where("run_id = ? AND public_id = ?", runID, publicID).
		First(&entity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
				"run step "+publicID+" not found in run "+runID, err, "")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to find run step by public id", err, "")
	}

	s := &domain.Step{}
	if err := mapStepFromEntity(&entity, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ListRunSteps returns one page of a run's steps ordered by creation.
func (r *PostgresRepository) ListRunSteps(ctx context.Context, runID string, params page.Params) (page.Page[*domain.Step], error) {
	q := r.db.WithContext(ctx).Model(&entities.RunStep{}).Where("run_id = ?", runID)
	q, err := cursor.Apply(ctx, q, params, func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&entities.RunStep{}).Where("run_id = ?", runID)
	})
	if err != nil {
		return page.Page[*domain.Step]{}, err
	}

	var rows []entities.RunStep
	if err := q.Limit(params.Limit + 1).Find(&rows).Error; err != nil {
		return page.Page[*domain.Step]{}, platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError, "failed to list run steps", err, "")
	}

	out := make([]*domain.Step, 0, len(rows))
	for i := range rows {
		s := &domain.Step{}
		if err := mapStepFromEntity(&rows[i], s); err != nil {
			return page.Page[*domain.Step]{}, err
		}
		out = append(out, s)
	}
	return page.FromLookahead(out, params.Limit, func(s *domain.Step) string { return s.PublicID }), nil
}

// UpdateRunStep persists changes to a run step.
func (r *PostgresRepository) UpdateRunStep(ctx context.Context, s *domain.Step) error {
	entity, err := mapStepToEntity(s)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map run step to entity for update", err, "")
	}
	entity.ID = s.ID

	if err := r.db.WithContext(ctx).Model(&entities.RunStep{ID: s.ID}).Updates(entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to update run step", err, "")
	}
	return nil
}

// DeleteByThread removes all runs and run steps of a thread.
func (r *PostgresRepository) DeleteByThread(ctx context.Context, threadID string) error {
	if err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&entities.RunStep{}).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to delete run steps of thread "+threadID, err, "")
	}
	if err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&entities.Run{}).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to delete runs of thread "+threadID, err, "")
	}
	return nil
}

func mapRunToEntity(ru *domain.Run) (*entities.Run, error) {
	tools, err := marshalJSON(ru.Tools)
	if err != nil {
		return nil, fmt.Errorf("marshal tools: %w", err)
	}
	requiredAction, err := marshalNullable(ru.RequiredAction)
	if err != nil {
		return nil, fmt.Errorf("marshal required action: %w", err)
	}
	lastError, err := marshalNullable(ru.LastError)
	if err != nil {
		return nil, fmt.Errorf("marshal last error: %w", err)
	}
	metadata, err := marshalJSON(ru.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return &entities.Run{
		PublicID:       ru.PublicID,
		Object:         ru.Object,
		ThreadID:       ru.ThreadID,
		AssistantID:    ru.AssistantID,
		Model:          ru.Model,
		Instructions:   ru.Instructions,
		Tools:          tools,
		Status:         ru.Status.String(),
		RequiredAction: requiredAction,
		LastError:      lastError,
		Temperature:    ru.Temperature,
		TopP:           ru.TopP,
		Metadata:       metadata,
		CreatedAt:      ru.CreatedAt,
		UpdatedAt:      ru.UpdatedAt,
		StartedAt:      ru.StartedAt,
		ExpiresAt:      ru.ExpiresAt,
		CompletedAt:    ru.CompletedAt,
		CancelledAt:    ru.CancelledAt,
		FailedAt:       ru.FailedAt,
		ExpiredAt:      ru.ExpiredAt,
	}, nil
}

func mapRunFromEntity(entity *entities.Run, ru *domain.Run) error {
	ru.ID = entity.ID
	ru.PublicID = entity.PublicID
	ru.Object = entity.Object
	ru.ThreadID = entity.ThreadID
	ru.AssistantID = entity.AssistantID
	ru.Model = entity.Model
	ru.Instructions = entity.Instructions
	ru.Status = domain.Status(entity.Status)
	ru.Temperature = entity.Temperature
	ru.TopP = entity.TopP
	ru.CreatedAt = entity.CreatedAt
	ru.UpdatedAt = entity.UpdatedAt
	ru.StartedAt = entity.StartedAt
	ru.ExpiresAt = entity.ExpiresAt
	ru.CompletedAt = entity.CompletedAt
	ru.CancelledAt = entity.CancelledAt
	ru.FailedAt = entity.FailedAt
	ru.ExpiredAt = entity.ExpiredAt

	ru.Tools = nil
	if len(entity.Tools) > 0 {
		if err := json.Unmarshal(entity.Tools, &ru.Tools); err != nil {
			return fmt.Errorf("unmarshal tools: %w", err)
		}
	}
	ru.RequiredAction = nil
	if len(entity.RequiredAction) > 0 && string(entity.RequiredAction) != "null" {
		var action domain.RequiredAction
		if err := json.Unmarshal(entity.RequiredAction, &action); err != nil {
			return fmt.Errorf("unmarshal required action: %w", err)
		}
		ru.RequiredAction = &action
	}
	ru.LastError = nil
	if len(entity.LastError) > 0 && string(entity.LastError) != "null" {
		var lastErr domain.LastError
		if err := json.Unmarshal(entity.LastError, &lastErr); err != nil {
			return fmt.Errorf("unmarshal last error: %w", err)
		}
		ru.LastError = &lastErr
	}
	ru.Metadata = nil
	if len(entity.Metadata) > 0 {
		if err := json.Unmarshal(entity.Metadata, &ru.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return nil
}

func mapStepToEntity(s *domain.Step) (*entities.RunStep, error) {
	details, err := json.Marshal(s.StepDetails)
	if err != nil {
		return nil, fmt.Errorf("marshal step details: %w", err)
	}
	lastError, err := marshalNullable(s.LastError)
	if err != nil {
		return nil, fmt.Errorf("marshal last error: %w", err)
	}

	return &entities.RunStep{
		PublicID:    s.PublicID,
		Object:      s.Object,
		RunID:       s.RunID,
		ThreadID:    s.ThreadID,
		AssistantID: s.AssistantID,
		Type:        string(s.Type),
		Status:      string(s.Status),
		StepDetails: details,
		LastError:   lastError,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		CompletedAt: s.CompletedAt,
		FailedAt:    s.FailedAt,
		CancelledAt: s.CancelledAt,
		ExpiredAt:   s.ExpiredAt,
	}, nil
}

func mapStepFromEntity(entity *entities.RunStep, s *domain.Step) error {
	s.ID = entity.ID
	s.PublicID = entity.PublicID
	s.Object = entity.Object
	s.RunID = entity.RunID
	s.ThreadID = entity.ThreadID
	s.AssistantID = entity.AssistantID
	s.Type = domain.StepType(entity.Type)
	s.Status = domain.StepStatus(entity.Status)
	s.CreatedAt = entity.CreatedAt
	s.UpdatedAt = entity.UpdatedAt
	s.CompletedAt = entity.CompletedAt
	s.FailedAt = entity.FailedAt
	s.CancelledAt = entity.CancelledAt
	s.ExpiredAt = entity.ExpiredAt

	if err := json.Unmarshal(entity.StepDetails, &s.StepDetails); err != nil {
		return fmt.Errorf("unmarshal step details: %w", err)
	}
	s.LastError = nil
	if len(entity.LastError) > 0 && string(entity.LastError) != "null" {
		var lastErr domain.LastError
		if err := json.Unmarshal(entity.LastError, &lastErr); err != nil {
			return fmt.Errorf("unmarshal last error: %w", err)
		}
		s.LastError = &lastErr
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

// marshalNullable keeps absent pointers as SQL NULL instead of JSON null.
func marshalNullable(value any) (datatypes.JSON, error) {
	switch v := value.(type) {
	case *domain.RequiredAction:
		if v == nil {
			return nil, nil
		}
	case *domain.LastError:
		if v == nil {
			return nil, nil
		}
	}
	bytes, err := json.Marshal(value)
	return datatypes.JSON(bytes), err
}
