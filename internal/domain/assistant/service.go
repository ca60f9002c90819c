package assistant

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"assistant-server/internal/domain/page"
	"assistant-server/internal/utils/idgen"
	"assistant-server/internal/utils/platformerrors"
)

// CreateParams contains inputs collected from the HTTP layer.
type CreateParams struct {
	Model        string
	Name         *string
	Description  *string
	Instructions string
	Tools        []Tool
	FileIDs      []string
	Temperature  *float64
	TopP         *float64
	Metadata     map[string]any
}

// ModifyParams carries a partial update; nil fields are left untouched.
type ModifyParams struct {
	Model        *string
	Name         *string
	Description  *string
	Instructions *string
	Tools        []Tool
	FileIDs      []string
	Metadata     map[string]any
}

// Service exposes assistant domain operations.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*Assistant, error)
	Get(ctx context.Context, publicID string) (*Assistant, error)
	List(ctx context.Context, params page.Params) (page.Page[*Assistant], error)
	Modify(ctx context.Context, publicID string, params ModifyParams) (*Assistant, error)
	Delete(ctx context.Context, publicID string) error
}

type service struct {
	repo Repository
	log  zerolog.Logger
}

// NewService wires the assistant service with its repository.
func NewService(repo Repository, log zerolog.Logger) Service {
	return &service{
		repo: repo,
		log:  log.With().Str("component", "assistant-service").Logger(),
	}
}

func (s *service) Create(ctx context.Context, params CreateParams) (*Assistant, error) {
	if strings.TrimSpace(params.Model) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"model must not be blank", nil, "")
	}
	if err := validateTools(ctx, params.Tools); err != nil {
		return nil, err
	}

	a := &Assistant{
		PublicID:     idgen.MustGenerate(idgen.PrefixAssistant),
		Object:       ObjectType,
		Model:        params.Model,
		Name:         params.Name,
		Description:  params.Description,
		Instructions: params.Instructions,
		Tools:        params.Tools,
		FileIDs:      params.FileIDs,
		Temperature:  params.Temperature,
		TopP:         params.TopP,
		Metadata:     params.Metadata,
	}
	if a.Tools == nil {
		a.Tools = []Tool{}
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.log.Info().Str("assistant_id", a.PublicID).Str("model", a.Model).Msg("assistant created")
	return a, nil
}

func (s *service) Get(ctx context.Context, publicID string) (*Assistant, error) {
	return s.repo.FindByPublicID(ctx, publicID)
}

func (s *service) List(ctx context.Context, params page.Params) (page.Page[*Assistant], error) {
	return s.repo.List(ctx, params.Normalize())
}

func (s *service) Modify(ctx context.Context, publicID string, params ModifyParams) (*Assistant, error) {
	a, err := s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	if params.Model != nil {
		a.Model = *params.Model
	}
	if params.Name != nil {
		a.Name = params.Name
	}
	if params.Description != nil {
		a.Description = params.Description
	}
	if params.Instructions != nil {
		a.Instructions = *params.Instructions
	}
	if params.Tools != nil {
		if err := validateTools(ctx, params.Tools); err != nil {
			return nil, err
		}
		a.Tools = params.Tools
	}
	if params.FileIDs != nil {
		a.FileIDs = params.FileIDs
	}
	if params.Metadata != nil {
		a.Metadata = params.Metadata
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *service) Delete(ctx context.Context, publicID string) error {
	return s.repo.Delete(ctx, publicID)
}

func validateTools(ctx context.Context, tools []Tool) error {
	for _, t := range tools {
		switch t.Type {
		case ToolTypeFunction:
			if t.Function == nil || strings.TrimSpace(t.Function.Name) == "" {
				return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
					"function tool requires a name", nil, "")
			}
		case ToolTypeCodeInterpreter, ToolTypeFileSearch:
		default:
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				"unknown tool type: "+string(t.Type), nil, "")
		}
	}
	return nil
}
