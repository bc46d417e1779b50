package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/logger"
)

const billingEventRetentionDays = 90

type billingEventPruner interface {
	DeleteEventsAppliedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type BillingEventRetentionJobParams struct {
	Logger      *logger.Logger
	BillingRepo billingEventPruner
	// Retention must exceed the longest window in which the provider may
	// redeliver an event.
	RetentionDays int
}

func NewBillingEventRetentionJob(params BillingEventRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = billingEventRetentionDays
	}
	return &billingEventRetentionJob{
		logg:      params.Logger,
		repo:      params.BillingRepo,
		retention: retention,
		now:       db.UTCNow,
	}, nil
}

type billingEventRetentionJob struct {
	logg      *logger.Logger
	repo      billingEventPruner
	retention int
	now       func() time.Time
}

func (j *billingEventRetentionJob) Name() string { return "billing-event-retention" }

func (j *billingEventRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.repo.DeleteEventsAppliedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("billing event retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	}), "billing event retention cleanup complete")
	return nil
}
