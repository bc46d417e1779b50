package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/missions-backend/pkg/enums"
)

// Mission is generated content delivered to a principal after admission.
type Mission struct {
	ID          uuid.UUID             `gorm:"type:uuid;primaryKey"`
	UserID      *uuid.UUID            `gorm:"column:user_id;type:uuid;index"`
	SessionID   *string               `gorm:"column:session_id"`
	Category    enums.MissionCategory `gorm:"column:category;type:text;not null;index"`
	Content     string                `gorm:"column:content;type:text;not null"`
	Extended    bool                  `gorm:"column:extended;not null;default:false"`
	RatingScore int64                 `gorm:"column:rating_score;not null;default:0;index"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (m *Mission) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
