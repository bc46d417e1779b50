package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/logger"
)

type holdPruner interface {
	DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error)
}

type UsageHoldCleanupJobParams struct {
	Logger    *logger.Logger
	UsageRepo holdPruner
}

// NewUsageHoldCleanupJob removes admission holds whose TTL has passed. Expired
// holds already stop counting; this only keeps the table small.
func NewUsageHoldCleanupJob(params UsageHoldCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.UsageRepo == nil {
		return nil, fmt.Errorf("usage repository required")
	}
	return &usageHoldCleanupJob{logg: params.Logger, repo: params.UsageRepo, now: db.UTCNow}, nil
}

type usageHoldCleanupJob struct {
	logg *logger.Logger
	repo holdPruner
	now  func() time.Time
}

func (j *usageHoldCleanupJob) Name() string { return "usage-hold-cleanup" }

func (j *usageHoldCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.repo.DeleteExpiredHolds(ctx, j.now())
	if err != nil {
		return fmt.Errorf("delete expired holds: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_deleted", deleted), "expired usage holds removed")
	return nil
}
