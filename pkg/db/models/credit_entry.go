package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/missions-backend/pkg/enums"
)

// CreditEntry is a signed, append-only movement of the secondary currency.
type CreditEntry struct {
	ID        uuid.UUID               `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	Amount    int64                   `gorm:"column:amount;not null"`
	Reason    enums.CreditEntryReason `gorm:"column:reason;type:text;not null"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (c *CreditEntry) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
