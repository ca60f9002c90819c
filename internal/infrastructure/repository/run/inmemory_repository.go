package run

import (
	"context"
	"sync"
	"time"

	"assistant-server/internal/domain/page"
	domain "assistant-server/internal/domain/run"
	"assistant-server/internal/infrastructure/repository/cursor"
	"assistant-server/internal/utils/platformerrors"
)

// InMemoryRepository is a thread-safe repository backed by slices. The
// guarded status update holds the same lock as every other mutation, which
// gives it the atomicity the SQL conditional UPDATE provides in postgres.
type InMemoryRepository struct {
	mu         sync.RWMutex
	nextRunID  uint
	nextStepID uint
	runs       []*domain.Run
	steps      []*domain.Step
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextRunID: 1, nextStepID: 1}
}

// CreateRun stores a copy of the run.
func (r *InMemoryRepository) CreateRun(ctx context.Context, ru *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	ru.ID = r.nextRunID
	r.nextRunID++
	ru.CreatedAt = now
	ru.UpdatedAt = now

	stored := *ru
	r.runs = append(r.runs, &stored)
	return nil
}

// FindRunByPublicID returns a copy of the matching run scoped to a thread.
func (r *InMemoryRepository) FindRunByPublicID(ctx context.Context, threadID, publicID string) (*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findRunLocked(ctx, threadID, publicID)
}

func (r *InMemoryRepository) findRunLocked(ctx context.Context, threadID, publicID string) (*domain.Run, error) {
	for _, ru := range r.runs {
		if ru.ThreadID == threadID && ru.PublicID == publicID {
			out := *ru
			return &out, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"run "+publicID+" not found in thread "+threadID, nil, "")
}

// ListRuns pages a thread's runs by insertion order.
func (r *InMemoryRepository) ListRuns(ctx context.Context, threadID string, params page.Params) (page.Page[*domain.Run], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var scoped []*domain.Run
	for _, ru := range r.runs {
		if ru.ThreadID == threadID {
			scoped = append(scoped, ru)
		}
	}

	rows, err := cursor.Window(ctx, scoped, params,
		func(ru *domain.Run) uint { return ru.ID },
		func(ru *domain.Run) string { return ru.PublicID })
	if err != nil {
		return page.Page[*domain.Run]{}, err
	}

	copies := make([]*domain.Run, len(rows))
	for i, ru := range rows {
		c := *ru
		copies[i] = &c
	}
	return page.FromLookahead(copies, params.Limit, func(ru *domain.Run) string { return ru.PublicID }), nil
}

// ListRunsByStatus returns every run in one of the statuses, oldest first.
func (r *InMemoryRepository) ListRunsByStatus(ctx context.Context, statuses []domain.Status) ([]*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[domain.Status]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var out []*domain.Run
	for _, ru := range r.runs {
		if wanted[ru.Status] {
			c := *ru
			out = append(out, &c)
		}
	}
	return out, nil
}

// UpdateRun replaces the stored run.
func (r *InMemoryRepository) UpdateRun(ctx context.Context, ru *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.runs {
		if existing.PublicID == ru.PublicID {
			ru.ID = existing.ID
			ru.CreatedAt = existing.CreatedAt
			ru.UpdatedAt = time.Now()
			stored := *ru
			r.runs[i] = &stored
			return nil
		}
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"run "+ru.PublicID+" not found", nil, "")
}

// UpdateRunStatusGuarded applies the transition only when the stored status
// is still in `from`.
func (r *InMemoryRepository) UpdateRunStatusGuarded(ctx context.Context, threadID, publicID string,
	from []domain.Status, to domain.Status, patch domain.StatusPatch) (*domain.Run, error) {

	r.mu.Lock()
	defer r.mu.Unlock()

	var target *domain.Run
	for _, ru := range r.runs {
		if ru.ThreadID == threadID && ru.PublicID == publicID {
			target = ru
			break
		}
	}
	if target == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"run "+publicID+" not found in thread "+threadID, nil, "")
	}

	allowed := false
	for _, s := range from {
		if target.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, domain.ErrStatusGuard
	}

	target.Status = to
	target.UpdatedAt = time.Now()
	if patch.RequiredAction != nil {
		target.RequiredAction = patch.RequiredAction
	} else if patch.ClearRequired {
		target.RequiredAction = nil
	}
	if patch.LastError != nil {
		target.LastError = patch.LastError
	}
	if patch.StartedAt != nil {
		target.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		target.CompletedAt = patch.CompletedAt
	}
	if patch.CancelledAt != nil {
		target.CancelledAt = patch.CancelledAt
	}
	if patch.FailedAt != nil {
		target.FailedAt = patch.FailedAt
	}
	if patch.ExpiredAt != nil {
		target.ExpiredAt = patch.ExpiredAt
	}

	out := *target
	return &out, nil
}

// CreateRunStep stores a copy of the step.
func (r *InMemoryRepository) CreateRunStep(ctx context.Context, s *domain.Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	s.ID = r.nextStepID
	r.nextStepID++
	s.CreatedAt = now
	s.UpdatedAt = now

	stored := *s
	r.steps = append(r.steps, &stored)
	return nil
}

// FindStepByPublicID returns a copy of the matching step scoped to a run.
func (r *InMemoryRepository) FindStepByPublicID(ctx context.Context, runID, publicID string) (*domain.Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.steps {
		if s.RunID == runID && s.PublicID == publicID {
			out := *s
			return &out, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"run step "+publicID+" not found in run "+runID, nil, "")
}

// ListRunSteps pages a run's steps by insertion order.
func (r *InMemoryRepository) ListRunSteps(ctx context.Context, runID string, params page.Params) (page.Page[*domain.Step], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var scoped []*domain.Step
	for _, s := range r.steps {
		if s.RunID == runID {
			scoped = append(scoped, s)
		}
	}

	rows, err := cursor.Window(ctx, scoped, params,
		func(s *domain.Step) uint { return s.ID },
		func(s *domain.Step) string { return s.PublicID })
	if err != nil {
		return page.Page[*domain.Step]{}, err
	}

	copies := make([]*domain.Step, len(rows))
	for i, s := range rows {
		c := *s
		copies[i] = &c
	}
	return page.FromLookahead(copies, params.Limit, func(s *domain.Step) string { return s.PublicID }), nil
}

// UpdateRunStep replaces the stored step.
func (r *InMemoryRepository) UpdateRunStep(ctx context.Context, s *domain.Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.steps {
		if existing.PublicID == s.PublicID {
			s.ID = existing.ID
			s.CreatedAt = existing.CreatedAt
			s.UpdatedAt = time.Now()
			stored := *s
			r.steps[i] = &stored
			return nil
		}
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"run step "+s.PublicID+" not found", nil, "")
}

// DeleteByThread removes all runs and steps of a thread.
func (r *InMemoryRepository) DeleteByThread(ctx context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keptRuns := r.runs[:0]
	for _, ru := range r.runs {
		if ru.ThreadID != threadID {
			keptRuns = append(keptRuns, ru)
		}
	}
	r.runs = keptRuns

	keptSteps := r.steps[:0]
	for _, s := range r.steps {
		if s.ThreadID != threadID {
			keptSteps = append(keptSteps, s)
		}
	}
	r.steps = keptSteps
	return nil
}
