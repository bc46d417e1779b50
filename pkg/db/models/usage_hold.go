package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageHold reserves one unit of allowance between admission and the caller
// confirming or releasing it. Holds past ExpiresAt no longer count.
type UsageHold struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PrincipalKey string     `gorm:"column:principal_key;not null;index"`
	UserID       *uuid.UUID `gorm:"column:user_id;type:uuid"`
	SessionID    *string    `gorm:"column:session_id"`
	PurchaseID   *uuid.UUID `gorm:"column:purchase_id;type:uuid"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null;index"`
}

func (h *UsageHold) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
