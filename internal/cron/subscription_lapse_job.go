package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/missions-backend/internal/billing"
	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const defaultLapseLimit = 250

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type SubscriptionLapseJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	BillingRepo billing.Repository
	Limit       int
	Now         func() time.Time
}

// NewSubscriptionLapseJob marks soft-canceled subscriptions as canceled once
// their period has ended. Entitlement checks already treat them as lapsed;
// the job brings the stored status in line for reporting.
func NewSubscriptionLapseJob(params SubscriptionLapseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	now := params.Now
	if now == nil {
		now = db.UTCNow
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultLapseLimit
	}
	return &subscriptionLapseJob{
		logg:        params.Logger,
		db:          params.DB,
		billingRepo: params.BillingRepo,
		limit:       limit,
		now:         now,
	}, nil
}

type subscriptionLapseJob struct {
	logg        *logger.Logger
	db          txRunner
	billingRepo billing.Repository
	limit       int
	now         func() time.Time
}

func (j *subscriptionLapseJob) Name() string { return "subscription-lapse" }

func (j *subscriptionLapseJob) Run(ctx context.Context) error {
	now := j.now()
	candidates, err := j.billingRepo.ListLapsedSubscriptions(ctx, now, j.limit)
	if err != nil {
		return fmt.Errorf("list lapsed subscriptions: %w", err)
	}

	var errs error
	lapsed := 0
	for i := range candidates {
		changed, err := j.lapse(ctx, candidates[i].BillingCustomerRef, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("lapse %s: %w", candidates[i].ID, err))
			continue
		}
		if changed {
			lapsed++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"lapsed":     lapsed,
	}), "subscription lapse loop complete")
	return errs
}

// lapse re-reads the row under lock so a provider event applied since the
// listing wins.
func (j *subscriptionLapseJob) lapse(ctx context.Context, customerRef string, now time.Time) (bool, error) {
	changed := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.billingRepo.WithTx(tx)
		sub, err := repo.FindSubscriptionByCustomerRef(ctx, customerRef, true)
		if err != nil || sub == nil {
			return err
		}
		if sub.Status != enums.SubscriptionStatusActive || !sub.CancelAtPeriodEnd ||
			sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Before(now) {
			return nil
		}
		canceledAt := *sub.CurrentPeriodEnd
		sub.Status = enums.SubscriptionStatusCanceled
		sub.CancelAtPeriodEnd = false
		sub.CanceledAt = &canceledAt
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}
