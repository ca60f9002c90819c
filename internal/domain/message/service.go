package message

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"assistant-server/internal/domain/page"
	"assistant-server/internal/domain/thread"
	"assistant-server/internal/utils/idgen"
	"assistant-server/internal/utils/platformerrors"
)

// CreateParams contains inputs for creating a message.
type CreateParams struct {
	Role        Role
	Content     string
	AssistantID *string
	RunID       *string
	Metadata    map[string]any
}

// Service exposes message domain operations.
type Service interface {
	Create(ctx context.Context, threadID string, params CreateParams) (*Message, error)
	Get(ctx context.Context, threadID, publicID string) (*Message, error)
	List(ctx context.Context, threadID string, params page.Params) (page.Page[*Message], error)
	Modify(ctx context.Context, threadID, publicID string, metadata map[string]any) (*Message, error)

	// LatestUserMessage pages backwards through the thread until a user
	// message is found.
	LatestUserMessage(ctx context.Context, threadID string) (*Message, error)
}

type service struct {
	repo    Repository
	threads thread.Repository
	log     zerolog.Logger
}

// NewService wires the message service with its repositories.
func NewService(repo Repository, threads thread.Repository, log zerolog.Logger) Service {
	return &service{
		repo:    repo,
		threads: threads,
		log:     log.With().Str("component", "message-service").Logger(),
	}
}

func (s *service) Create(ctx context.Context, threadID string, params CreateParams) (*Message, error) {
	if params.Role != RoleUser && params.Role != RoleAssistant {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"role must be user or assistant", nil, "")
	}
	if strings.TrimSpace(params.Content) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"content must not be blank", nil, "")
	}
	if _, err := s.threads.FindByPublicID(ctx, threadID); err != nil {
		return nil, err
	}

	m := &Message{
		PublicID:    idgen.MustGenerate(idgen.PrefixMessage),
		Object:      ObjectType,
		ThreadID:    threadID,
		Role:        params.Role,
		Content:     TextParts(params.Content),
		AssistantID: params.AssistantID,
		RunID:       params.RunID,
		Metadata:    params.Metadata,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *service) Get(ctx context.Context, threadID, publicID string) (*Message, error) {
	return s.repo.FindByPublicID(ctx, threadID, publicID)
}

func (s *service) List(ctx context.Context, threadID string, params page.Params) (page.Page[*Message], error) {
	return s.repo.List(ctx, threadID, params.Normalize())
}

func (s *service) Modify(ctx context.Context, threadID, publicID string, metadata map[string]any) (*Message, error) {
	m, err := s.repo.FindByPublicID(ctx, threadID, publicID)
	if err != nil {
		return nil, err
	}
	if metadata != nil {
		m.Metadata = metadata
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *service) LatestUserMessage(ctx context.Context, threadID string) (*Message, error) {
	params := page.Params{Order: page.OrderDesc, Limit: page.MaxLimit}
	for {
		pg, err := s.repo.List(ctx, threadID, params)
		if err != nil {
			return nil, err
		}
		for _, m := range pg.Data {
			if m.Role == RoleUser {
				return m, nil
			}
		}
		if !pg.HasMore {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
				"no user message in thread "+threadID, nil, "")
		}
		params.After = pg.LastID
	}
}
