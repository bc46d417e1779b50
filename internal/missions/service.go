package missions

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/missions-backend/internal/entitlements"
	"github.com/angelmondragon/missions-backend/internal/experience"
	"github.com/angelmondragon/missions-backend/internal/usage"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/angelmondragon/missions-backend/pkg/openai"
	"github.com/google/uuid"
)

const (
	avoidListSize  = 100
	recentListSize = 10
)

type generator interface {
	Complete(ctx context.Context, messages []openai.Message) (string, error)
}

type awarder interface {
	Award(ctx context.Context, userID uuid.UUID, action experience.Action) (experience.Result, error)
}

type Service interface {
	Generate(ctx context.Context, principal entitlements.Principal, input GenerateInput) (GenerateResult, error)
	Recent(ctx context.Context, principal entitlements.Principal) ([]MissionDTO, error)
}

type GenerateInput struct {
	Category string `json:"category" validate:"required"`
	Extended bool   `json:"extended"`
}

type MissionDTO struct {
	ID          uuid.UUID             `json:"id"`
	Category    enums.MissionCategory `json:"category"`
	Content     string                `json:"content"`
	Extended    bool                  `json:"extended"`
	RatingScore int64                 `json:"rating_score"`
	CreatedAt   time.Time             `json:"created_at"`
}

func FromModel(m models.Mission) MissionDTO {
	return MissionDTO{
		ID:          m.ID,
		Category:    m.Category,
		Content:     m.Content,
		Extended:    m.Extended,
		RatingScore: m.RatingScore,
		CreatedAt:   m.CreatedAt,
	}
}

type GenerateResult struct {
	Mission    MissionDTO          `json:"mission"`
	Source     usage.FundingSource `json:"source"`
	Experience *experience.Result  `json:"experience,omitempty"`
}

type ServiceParams struct {
	Repo        *Repository
	Resolver    entitlements.Resolver
	Generator   generator
	Progression awarder
	Logger      *logger.Logger
}

type service struct {
	repo        *Repository
	resolver    entitlements.Resolver
	generator   generator
	progression awarder
	logg        *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("missions repository required")
	case params.Resolver == nil:
		return nil, fmt.Errorf("entitlement resolver required")
	case params.Generator == nil:
		return nil, fmt.Errorf("generator required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        params.Repo,
		resolver:    params.Resolver,
		generator:   params.Generator,
		progression: params.Progression,
		logg:        params.Logger,
	}, nil
}

// Generate admits the principal, calls the generator and records usage only
// after the mission is stored. Any failure before that releases the
// admission so nothing is consumed.
func (s *service) Generate(ctx context.Context, principal entitlements.Principal, input GenerateInput) (GenerateResult, error) {
	category, err := enums.ParseMissionCategory(input.Category)
	if err != nil {
		return GenerateResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category").
			WithDetails(map[string]any{"category": input.Category})
	}

	admission, err := s.resolver.CheckAdmission(ctx, principal, entitlements.AdmissionRequest{Extended: input.Extended})
	if err != nil {
		return GenerateResult{}, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"admission_id": admission.ID.String(),
		"category":     category.String(),
		"extended":     input.Extended,
	})

	var avoid []string
	if input.Extended {
		avoid, err = s.repo.RecentContents(ctx, category, avoidListSize)
		if err != nil {
			s.release(ctx, admission)
			return GenerateResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load previous missions")
		}
	}

	content, err := s.generator.Complete(ctx, buildPrompt(category, avoid))
	if err != nil {
		s.release(ctx, admission)
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "mission generation failed")
		return GenerateResult{}, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "mission generation failed")
	}

	mission := models.Mission{
		Category: category,
		Content:  content,
		Extended: input.Extended,
	}
	if principal.IsAnonymous() {
		token := principal.SessionToken
		mission.SessionID = &token
	} else {
		id := principal.UserID
		mission.UserID = &id
	}
	if err := s.repo.Create(ctx, &mission); err != nil {
		s.release(ctx, admission)
		return GenerateResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store mission")
	}

	if err := s.resolver.RecordUsage(ctx, admission); err != nil {
		// The mission is already stored; the resolver logged the escalation.
		s.logg.Error(ctx, "mission delivered without usage record", err)
	}

	result := GenerateResult{Mission: FromModel(mission), Source: admission.Source}
	if !principal.IsAnonymous() && s.progression != nil {
		action := experience.ActionGenerate
		if input.Extended {
			action = experience.ActionGenerateExtended
		}
		award, err := s.progression.Award(ctx, principal.UserID, action)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "experience award after generation failed")
		} else {
			result.Experience = &award
		}
	}
	return result, nil
}

func (s *service) release(ctx context.Context, admission entitlements.Admission) {
	if err := s.resolver.ReleaseAdmission(ctx, admission); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "admission release failed; hold will expire")
	}
}

func (s *service) Recent(ctx context.Context, principal entitlements.Principal) ([]MissionDTO, error) {
	var (
		rows []models.Mission
		err  error
	)
	switch {
	case principal.Kind == enums.PrincipalKindUser && principal.UserID != uuid.Nil:
		rows, err = s.repo.ListForUser(ctx, principal.UserID, recentListSize)
	case principal.IsAnonymous() && principal.SessionToken != "":
		rows, err = s.repo.ListForSession(ctx, principal.SessionToken, recentListSize)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no principal for request")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list missions")
	}
	out := make([]MissionDTO, 0, len(rows))
	for _, m := range rows {
		out = append(out, FromModel(m))
	}
	return out, nil
}
