package run

import (
	"context"
	"time"

	"assistant-server/internal/domain/page"
)

// StatusPatch carries the optional fields written together with a guarded
// status transition. Nil fields are left untouched.
type StatusPatch struct {
	RequiredAction *RequiredAction
	ClearRequired  bool
	LastError      *LastError
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
	FailedAt       *time.Time
	ExpiredAt      *time.Time
}

// Repository defines persistence operations for runs and run steps.
type Repository interface {
	CreateRun(ctx context.Context, r *Run) error
	FindRunByPublicID(ctx context.Context, threadID, publicID string) (*Run, error)
	ListRuns(ctx context.Context, threadID string, params page.Params) (page.Page[*Run], error)
	ListRunsByStatus(ctx context.Context, statuses []Status) ([]*Run, error)
	UpdateRun(ctx context.Context, r *Run) error

	// UpdateRunStatusGuarded performs the CAS-style conditional update that
	// serializes workers: the transition only happens when the stored status
	// is still in `from`. A guard miss returns ErrStatusGuard; the caller
	// decides whether that is a conflict or a benign race loss.
	UpdateRunStatusGuarded(ctx context.Context, threadID, publicID string, from []Status, to Status, patch StatusPatch) (*Run, error)

	CreateRunStep(ctx context.Context, s *Step) error
	FindStepByPublicID(ctx context.Context, runID, publicID string) (*Step, error)
	ListRunSteps(ctx context.Context, runID string, params page.Params) (page.Page[*Step], error)
	UpdateRunStep(ctx context.Context, s *Step) error

	DeleteByThread(ctx context.Context, threadID string) error
}

type guardError struct{}

func (guardError) Error() string { return "run status guard miss" }

// ErrStatusGuard is returned by UpdateRunStatusGuarded when the run exists
// but its status is no longer in the allowed entry set.
var ErrStatusGuard error = guardError{}
