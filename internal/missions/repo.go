package missions

import (
	"context"

	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, mission *models.Mission) error {
	return r.db.WithContext(ctx).Create(mission).Error
}

// RecentContents returns the content of the newest missions in category,
// across all principals.
func (r *Repository) RecentContents(ctx context.Context, category enums.MissionCategory, limit int) ([]string, error) {
	var contents []string
	err := r.db.WithContext(ctx).
		Model(&models.Mission{}).
		Where("category = ?", category).
		Order("created_at DESC").
		Limit(limit).
		Pluck("content", &contents).Error
	return contents, err
}

// ListForUser returns a user's newest missions first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Mission, error) {
	var out []models.Mission
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *Repository) ListForSession(ctx context.Context, sessionID string, limit int) ([]models.Mission, error) {
	var out []models.Mission
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// FindByID returns gorm.ErrRecordNotFound when the mission does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	var mission models.Mission
	if err := r.db.WithContext(ctx).First(&mission, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &mission, nil
}

func (r *Repository) CountSwipesOnDay(ctx context.Context, userID uuid.UUID, day string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.MissionSwipe{}).
		Where("user_id = ? AND swipe_day = ?", userID, day).
		Count(&n).Error
	return n, err
}

func (r *Repository) HasSwipedOnDay(ctx context.Context, userID, missionID uuid.UUID, day string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.MissionSwipe{}).
		Where("user_id = ? AND mission_id = ? AND swipe_day = ?", userID, missionID, day).
		Count(&n).Error
	return n > 0, err
}

func (r *Repository) CreateSwipe(ctx context.Context, swipe *models.MissionSwipe) error {
	return r.db.WithContext(ctx).Create(swipe).Error
}

// CreateLike reports false when the user already liked the mission.
func (r *Repository) CreateLike(ctx context.Context, like *models.MissionLike) (bool, error) {
	if err := r.db.WithContext(ctx).Create(like).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IncrementRating adds one to the mission's rating score and returns the new value.
func (r *Repository) IncrementRating(ctx context.Context, missionID uuid.UUID) (int64, error) {
	if err := r.db.WithContext(ctx).
		Model(&models.Mission{}).
		Where("id = ?", missionID).
		Update("rating_score", gorm.Expr("rating_score + 1")).Error; err != nil {
		return 0, err
	}
	var score int64
	err := r.db.WithContext(ctx).
		Model(&models.Mission{}).
		Where("id = ?", missionID).
		Pluck("rating_score", &score).Error
	return score, err
}

// ListFeed returns other principals' missions, newest first, skipping ones
// the user already liked or swiped on day.
func (r *Repository) ListFeed(ctx context.Context, userID uuid.UUID, day string, limit int) ([]models.Mission, error) {
	liked := r.db.Model(&models.MissionLike{}).Select("mission_id").Where("user_id = ?", userID)
	swiped := r.db.Model(&models.MissionSwipe{}).Select("mission_id").Where("user_id = ? AND swipe_day = ?", userID, day)

	var out []models.Mission
	err := r.db.WithContext(ctx).
		Where("(user_id IS NULL OR user_id <> ?)", userID).
		Where("id NOT IN (?)", liked).
		Where("id NOT IN (?)", swiped).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListRanking returns liked missions by rating score, highest first.
func (r *Repository) ListRanking(ctx context.Context, offset, limit int) ([]models.Mission, error) {
	var out []models.Mission
	err := r.db.WithContext(ctx).
		Where("rating_score > 0").
		Order("rating_score DESC").
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
