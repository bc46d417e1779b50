package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/missions-backend/pkg/enums"
)

// MissionSwipe is one feed interaction. SwipeDay is the UTC calendar day
// (YYYY-MM-DD); a user swipes a mission at most once per day.
type MissionSwipe struct {
	ID        uuid.UUID            `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID            `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_mission_swipes_user_mission_day,priority:1;index:idx_mission_swipes_user_day,priority:1"`
	MissionID uuid.UUID            `gorm:"column:mission_id;type:uuid;not null;uniqueIndex:idx_mission_swipes_user_mission_day,priority:2"`
	SwipeDay  string               `gorm:"column:swipe_day;not null;uniqueIndex:idx_mission_swipes_user_mission_day,priority:3;index:idx_mission_swipes_user_day,priority:2"`
	Direction enums.SwipeDirection `gorm:"column:direction;type:text;not null"`
	CreatedAt time.Time            `gorm:"column:created_at;not null"`
}

func (s *MissionSwipe) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// MissionLike is permanent; each like adds one to the mission's rating score.
type MissionLike struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_mission_likes_user_mission,priority:1"`
	MissionID uuid.UUID `gorm:"column:mission_id;type:uuid;not null;uniqueIndex:idx_mission_likes_user_mission,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (l *MissionLike) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
