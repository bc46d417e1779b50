package models

import (
	"time"

	"github.com/angelmondragon/missions-backend/pkg/enums"
)

// BillingEvent marks a provider event id as applied.
type BillingEvent struct {
	EventID     string                 `gorm:"column:event_id;primaryKey"`
	Type        enums.BillingEventType `gorm:"column:type;type:text;not null"`
	CustomerRef string                 `gorm:"column:customer_ref;not null"`
	OccurredAt  time.Time              `gorm:"column:occurred_at;not null"`
	AppliedAt   time.Time              `gorm:"column:applied_at;not null;index"`
}
