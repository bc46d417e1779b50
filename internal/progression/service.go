package progression

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/missions-backend/internal/experience"
	"github.com/angelmondragon/missions-backend/internal/users"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service persists experience awards for users.
type Service interface {
	Award(ctx context.Context, userID uuid.UUID, action experience.Action) (experience.Result, error)
	Snapshot(ctx context.Context, userID uuid.UUID) (Snapshot, error)
}

// Snapshot describes a user's standing on the level curve.
type Snapshot struct {
	Level          int    `json:"level"`
	Experience     int64  `json:"experience"`
	InCurrentLevel int64  `json:"experience_in_level"`
	ToNextLevel    int64  `json:"experience_to_next_level"`
	LevelSpan      int64  `json:"level_span"`
	Multiplier     string `json:"multiplier"`
}

type service struct {
	tx    txRunner
	users *users.Repository
}

func NewService(tx txRunner, repo *users.Repository) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{tx: tx, users: repo}, nil
}

func (s *service) Award(ctx context.Context, userID uuid.UUID, action experience.Action) (experience.Result, error) {
	base, err := experience.BaseXP(action)
	if err != nil {
		return experience.Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown action")
	}

	var result experience.Result
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.users.WithTx(tx)
		user, err := repo.FindByIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user progress")
		}
		result = experience.Award(base, user.Level, user.Experience)
		if err := repo.UpdateProgress(ctx, userID, result.NewLevel, result.NewXP); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save user progress")
		}
		return nil
	})
	return result, err
}

func (s *service) Snapshot(ctx context.Context, userID uuid.UUID) (Snapshot, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user progress")
	}
	level := experience.LevelForTotalExperience(user.Experience)
	return Snapshot{
		Level:          level,
		Experience:     user.Experience,
		InCurrentLevel: experience.ExperienceInCurrentLevel(user.Experience, level),
		ToNextLevel:    experience.ExperienceToNextLevel(user.Experience, level),
		LevelSpan:      experience.RequiredForLevel(level),
		Multiplier:     experience.MultiplierForLevel(level).String(),
	}, nil
}
