package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageRecord is one consumed action. A nil PurchaseID means the base
// allowance funded it. Rows are never updated.
type UsageRecord struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PrincipalKey   string     `gorm:"column:principal_key;not null;index:idx_usage_records_principal_created,priority:1"`
	UserID         *uuid.UUID `gorm:"column:user_id;type:uuid"`
	SessionID      *string    `gorm:"column:session_id"`
	PurchaseID     *uuid.UUID `gorm:"column:purchase_id;type:uuid;index"`
	IdempotencyKey string     `gorm:"column:idempotency_key;not null;uniqueIndex"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null;index:idx_usage_records_principal_created,priority:2"`
}

func (r *UsageRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
