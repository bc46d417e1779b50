package subscriptions

import (
	"time"

	"github.com/angelmondragon/missions-backend/pkg/config"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
)

// IsEntitled reports whether sub currently grants the subscriber tier. An
// active subscription without a period end never lapses; one whose period end
// has passed stops entitling even before the provider reports the change.
func IsEntitled(sub *models.Subscription, now time.Time) bool {
	if sub == nil || sub.Status != enums.SubscriptionStatusActive {
		return false
	}
	return sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Before(now)
}

// BaseLimit returns the rolling-window allowance for the tier.
func BaseLimit(entitled bool, cfg config.EntitlementsConfig) int64 {
	if entitled {
		return int64(cfg.SubscriberLimit)
	}
	return int64(cfg.FreeLimit)
}

// View is the client-facing subscription state.
type View struct {
	Status            enums.SubscriptionStatus `json:"status"`
	PeriodEnd         *time.Time               `json:"period_end,omitempty"`
	CancelAtPeriodEnd bool                     `json:"cancel_at_period_end"`
	Entitled          bool                     `json:"entitled"`
}

func ToView(sub *models.Subscription, now time.Time) View {
	if sub == nil {
		return View{}
	}
	return View{
		Status:            sub.Status,
		PeriodEnd:         sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Entitled:          IsEntitled(sub, now),
	}
}
