package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/missions-backend/pkg/enums"
	"github.com/google/uuid"
)

// Event is a normalized billing provider notification.
type Event struct {
	ID                string                 `json:"id" validate:"required"`
	Type              enums.BillingEventType `json:"type" validate:"required"`
	CustomerRef       string                 `json:"customer_ref" validate:"required"`
	SubscriptionRef   *string                `json:"subscription_ref,omitempty"`
	PurchaseRef       *string                `json:"purchase_ref,omitempty"`
	PaymentRef        *string                `json:"payment_ref,omitempty"`
	UserID            *uuid.UUID             `json:"user_id,omitempty"`
	ProviderStatus    string                 `json:"status,omitempty"`
	PeriodEnd         *time.Time             `json:"period_end,omitempty"`
	CancelAtPeriodEnd bool                   `json:"cancel_at_period_end,omitempty"`
	OccurredAt        time.Time              `json:"occurred_at"`
}

// Validate checks the fields every event kind needs.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("unsupported event type %q", e.Type)
	}
	if strings.TrimSpace(e.CustomerRef) == "" {
		return fmt.Errorf("customer reference is required")
	}
	if e.Type == enums.BillingEventTypeCheckoutCompleted && e.SubscriptionRef == nil && e.PurchaseRef == nil {
		return fmt.Errorf("checkout event needs a subscription or purchase reference")
	}
	return nil
}

// MapProviderStatus folds provider subscription states onto the local set.
func MapProviderStatus(status string) enums.SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return enums.SubscriptionStatusActive
	case "canceled", "cancelled":
		return enums.SubscriptionStatusCanceled
	default:
		return enums.SubscriptionStatusPastDue
	}
}
