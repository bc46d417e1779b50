package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/missions-backend/pkg/enums"
)

// Subscription persists billing-provider subscription state per user. Rows are
// keyed by the provider's customer reference.
type Subscription struct {
	ID                     uuid.UUID                `gorm:"type:uuid;primaryKey"`
	UserID                 uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	BillingCustomerRef     string                   `gorm:"column:billing_customer_ref;not null;uniqueIndex"`
	BillingSubscriptionRef *string                  `gorm:"column:billing_subscription_ref"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CurrentPeriodEnd       *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd      bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt             *time.Time               `gorm:"column:canceled_at"`
	LastEventAt            *time.Time               `gorm:"column:last_event_at"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
