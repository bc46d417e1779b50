package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/missions-backend/pkg/enums"
)

// UsagePurchase is a one-time block of actions. Only completed purchases
// contribute allowance and they never expire.
type UsagePurchase struct {
	ID                uuid.UUID            `gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	Amount            int                  `gorm:"column:amount;not null"`
	Status            enums.PurchaseStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CompletedAt       *time.Time           `gorm:"column:completed_at"`
	BillingSessionRef *string              `gorm:"column:billing_session_ref"`
	BillingPaymentRef *string              `gorm:"column:billing_payment_ref"`
	FromCredits       bool                 `gorm:"column:from_credits;not null;default:false"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *UsagePurchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
