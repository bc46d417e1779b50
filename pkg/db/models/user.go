package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/missions-backend/pkg/enums"
)

// User represents an authenticated principal and carries its progression.
type User struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey"`
	Email      string           `gorm:"type:text;not null;uniqueIndex"`
	Name       *string          `gorm:"column:name"`
	Role       enums.MemberRole `gorm:"column:role;type:text;not null;default:'user'"`
	Level      int              `gorm:"column:level;not null;default:1"`
	Experience int64            `gorm:"column:experience;not null;default:0"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = enums.MemberRoleUser
	}
	if u.Level < 1 {
		u.Level = 1
	}
	return nil
}
