package missions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/missions-backend/internal/experience"
	"github.com/angelmondragon/missions-backend/internal/users"
	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// FeedDailyLimit caps swipes per user per UTC day.
	FeedDailyLimit = 50

	defaultRankingSize = 10
	maxRankingSize     = 50
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// FeedService serves the daily swipe feed, likes and the rating ranking.
type FeedService interface {
	Feed(ctx context.Context, userID uuid.UUID) (FeedPage, error)
	Swipe(ctx context.Context, userID uuid.UUID, input SwipeInput) (SwipeResult, error)
	Like(ctx context.Context, userID, missionID uuid.UUID) (LikeResult, error)
	Ranking(ctx context.Context, offset, limit int) ([]MissionDTO, error)
}

type FeedPage struct {
	Missions        []MissionDTO `json:"missions"`
	DailyLimit      int64        `json:"daily_limit"`
	Used            int64        `json:"used"`
	Remaining       int64        `json:"remaining"`
	HasReachedLimit bool         `json:"has_reached_limit"`
}

type SwipeInput struct {
	MissionID uuid.UUID
	Direction string
}

type SwipeResult struct {
	Used       int64              `json:"used"`
	Remaining  int64              `json:"remaining"`
	Completed  bool               `json:"completed"`
	Experience *experience.Result `json:"experience,omitempty"`
}

type LikeResult struct {
	MissionID   uuid.UUID `json:"mission_id"`
	RatingScore int64     `json:"rating_score"`
}

type FeedServiceParams struct {
	Repo              *Repository
	Users             *users.Repository
	TransactionRunner txRunner
	Progression       awarder
	Logger            *logger.Logger
	Clock             func() time.Time
}

type feedService struct {
	repo        *Repository
	users       *users.Repository
	tx          txRunner
	progression awarder
	logg        *logger.Logger
	now         func() time.Time
}

func NewFeedService(params FeedServiceParams) (FeedService, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("missions repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.TransactionRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = db.UTCNow
	}
	return &feedService{
		repo:        params.Repo,
		users:       params.Users,
		tx:          params.TransactionRunner,
		progression: params.Progression,
		logg:        params.Logger,
		now:         clock,
	}, nil
}

func swipeDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func remainingSwipes(used int64) int64 {
	if used >= FeedDailyLimit {
		return 0
	}
	return FeedDailyLimit - used
}

// Feed lists missions the user can still swipe today.
func (s *feedService) Feed(ctx context.Context, userID uuid.UUID) (FeedPage, error) {
	if userID == uuid.Nil {
		return FeedPage{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	day := swipeDay(s.now())
	used, err := s.repo.CountSwipesOnDay(ctx, userID, day)
	if err != nil {
		return FeedPage{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count swipes")
	}
	page := FeedPage{
		Missions:        []MissionDTO{},
		DailyLimit:      FeedDailyLimit,
		Used:            used,
		Remaining:       remainingSwipes(used),
		HasReachedLimit: used >= FeedDailyLimit,
	}
	if page.HasReachedLimit {
		return page, nil
	}
	rows, err := s.repo.ListFeed(ctx, userID, day, int(page.Remaining))
	if err != nil {
		return FeedPage{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list feed")
	}
	for _, m := range rows {
		page.Missions = append(page.Missions, FromModel(m))
	}
	return page, nil
}

// Swipe records one feed swipe under the user row lock, so the daily cap
// holds across concurrent requests. Experience is awarded after commit; the
// swipe that reaches the cap also earns the completion bonus.
func (s *feedService) Swipe(ctx context.Context, userID uuid.UUID, input SwipeInput) (SwipeResult, error) {
	if userID == uuid.Nil {
		return SwipeResult{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if input.MissionID == uuid.Nil {
		return SwipeResult{}, pkgerrors.New(pkgerrors.CodeValidation, "mission id required")
	}
	direction, err := enums.ParseSwipeDirection(input.Direction)
	if err != nil {
		return SwipeResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid direction")
	}

	now := s.now()
	day := swipeDay(now)
	var used int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.users.WithTx(tx).FindByIDForUpdate(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock user")
		}
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByID(ctx, input.MissionID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "mission not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load mission")
		}
		swiped, err := repo.HasSwipedOnDay(ctx, userID, input.MissionID, day)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check swipe")
		}
		if swiped {
			return pkgerrors.New(pkgerrors.CodeValidation, "mission already swiped today")
		}
		count, err := repo.CountSwipesOnDay(ctx, userID, day)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count swipes")
		}
		if count >= FeedDailyLimit {
			return pkgerrors.New(pkgerrors.CodeRateLimit, "daily feed limit reached")
		}
		if err := repo.CreateSwipe(ctx, &models.MissionSwipe{
			UserID:    userID,
			MissionID: input.MissionID,
			SwipeDay:  day,
			Direction: direction,
			CreatedAt: now,
		}); err != nil {
			if db.IsUniqueViolation(err) {
				return pkgerrors.New(pkgerrors.CodeValidation, "mission already swiped today")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store swipe")
		}
		used = count + 1
		return nil
	})
	if err != nil {
		return SwipeResult{}, err
	}

	result := SwipeResult{Used: used, Remaining: remainingSwipes(used), Completed: used == FeedDailyLimit}
	ctx = s.logg.WithFields(ctx, map[string]any{"mission_id": input.MissionID.String(), "swipes_today": used})
	result.Experience = s.award(ctx, userID, experience.ActionSwipe)
	if result.Completed {
		if bonus := s.award(ctx, userID, experience.ActionFeedComplete); bonus != nil {
			result.Experience = bonus
		}
		s.logg.Info(ctx, "daily feed completed")
	}
	return result, nil
}

func (s *feedService) award(ctx context.Context, userID uuid.UUID, action experience.Action) *experience.Result {
	if s.progression == nil {
		return nil
	}
	res, err := s.progression.Award(ctx, userID, action)
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"action": string(action), "error": err.Error()}), "experience award after swipe failed")
		return nil
	}
	return &res
}

// Like records a permanent like and bumps the mission's rating score in the
// same transaction.
func (s *feedService) Like(ctx context.Context, userID, missionID uuid.UUID) (LikeResult, error) {
	if userID == uuid.Nil {
		return LikeResult{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if missionID == uuid.Nil {
		return LikeResult{}, pkgerrors.New(pkgerrors.CodeValidation, "mission id required")
	}
	result := LikeResult{MissionID: missionID}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByID(ctx, missionID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "mission not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load mission")
		}
		created, err := repo.CreateLike(ctx, &models.MissionLike{UserID: userID, MissionID: missionID, CreatedAt: s.now()})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store like")
		}
		if !created {
			return pkgerrors.New(pkgerrors.CodeValidation, "mission already liked")
		}
		result.RatingScore, err = repo.IncrementRating(ctx, missionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update rating")
		}
		return nil
	})
	if err != nil {
		return LikeResult{}, err
	}
	return result, nil
}

// Ranking pages through liked missions by rating score.
func (s *feedService) Ranking(ctx context.Context, offset, limit int) ([]MissionDTO, error) {
	if offset < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offset must be non-negative")
	}
	switch {
	case limit <= 0:
		limit = defaultRankingSize
	case limit > maxRankingSize:
		limit = maxRankingSize
	}
	rows, err := s.repo.ListRanking(ctx, offset, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ranking")
	}
	out := make([]MissionDTO, 0, len(rows))
	for _, m := range rows {
		out = append(out, FromModel(m))
	}
	return out, nil
}
