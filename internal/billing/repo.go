package billing

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles subscription and billing event persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	FindSubscriptionByCustomerRef(ctx context.Context, customerRef string, forUpdate bool) (*models.Subscription, error)
	FindCurrentSubscriptionByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Subscription, error)
	InsertEvent(ctx context.Context, event *models.BillingEvent) (bool, error)
	DeleteEventsAppliedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListLapsedSubscriptions(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

// FindSubscriptionByCustomerRef returns nil when no row exists for customerRef.
func (r *repository) FindSubscriptionByCustomerRef(ctx context.Context, customerRef string, forUpdate bool) (*models.Subscription, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var sub models.Subscription
	if err := q.Where("billing_customer_ref = ?", customerRef).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// FindCurrentSubscriptionByUser returns the user's active subscription whose
// period has not ended, falling back to the most recently created row. It
// returns nil when the user has none.
func (r *repository) FindCurrentSubscriptionByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	for i := range subs {
		sub := &subs[i]
		if sub.Status == enums.SubscriptionStatusActive && (sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Before(now)) {
			return sub, nil
		}
	}
	return &subs[0], nil
}

// InsertEvent records an applied event id. It reports false when the id was
// already recorded.
func (r *repository) InsertEvent(ctx context.Context, event *models.BillingEvent) (bool, error) {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) DeleteEventsAppliedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("applied_at < ?", cutoff).Delete(&models.BillingEvent{})
	return res.RowsAffected, res.Error
}

// ListLapsedSubscriptions returns active subscriptions flagged to cancel whose
// period has ended, oldest period end first.
func (r *repository) ListLapsedSubscriptions(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	q := r.db.WithContext(ctx).
		Where("status = ? AND cancel_at_period_end = ? AND current_period_end < ?", enums.SubscriptionStatusActive, true, now).
		Order("current_period_end ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
