package thread

import (
	"context"

	"github.com/rs/zerolog"

	"assistant-server/internal/domain/page"
	"assistant-server/internal/utils/idgen"
)

// Cascade removes thread-owned rows when a thread is deleted.
type Cascade interface {
	DeleteByThread(ctx context.Context, threadID string) error
}

// Service exposes thread domain operations.
type Service interface {
	Create(ctx context.Context, metadata map[string]any) (*Thread, error)
	Get(ctx context.Context, publicID string) (*Thread, error)
	List(ctx context.Context, params page.Params) (page.Page[*Thread], error)
	Modify(ctx context.Context, publicID string, metadata map[string]any) (*Thread, error)
	Delete(ctx context.Context, publicID string) error
}

type service struct {
	repo     Repository
	cascades []Cascade
	log      zerolog.Logger
}

// NewService wires the thread service. Cascades are invoked on delete so a
// thread never leaves orphaned messages or runs behind.
func NewService(repo Repository, log zerolog.Logger, cascades ...Cascade) Service {
	return &service{
		repo:     repo,
		cascades: cascades,
		log:      log.With().Str("component", "thread-service").Logger(),
	}
}

func (s *service) Create(ctx context.Context, metadata map[string]any) (*Thread, error) {
	t := &Thread{
		PublicID: idgen.MustGenerate(idgen.PrefixThread),
		Object:   ObjectType,
		Metadata: metadata,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info().Str("thread_id", t.PublicID).Msg("thread created")
	return t, nil
}

func (s *service) Get(ctx context.Context, publicID string) (*Thread, error) {
	return s.repo.FindByPublicID(ctx, publicID)
}

func (s *service) List(ctx context.Context, params page.Params) (page.Page[*Thread], error) {
	return s.repo.List(ctx, params.Normalize())
}

func (s *service) Modify(ctx context.Context, publicID string, metadata map[string]any) (*Thread, error) {
	t, err := s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if metadata != nil {
		t.Metadata = metadata
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *service) Delete(ctx context.Context, publicID string) error {
	if _, err := s.repo.FindByPublicID(ctx, publicID); err != nil {
		return err
	}
	for _, cascade := range s.cascades {
		if err := cascade.DeleteByThread(ctx, publicID); err != nil {
			return err
		}
	}
	return s.repo.Delete(ctx, publicID)
}
