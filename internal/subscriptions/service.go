package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/missions-backend/internal/billing"
	"github.com/angelmondragon/missions-backend/internal/experience"
	"github.com/angelmondragon/missions-backend/internal/usage"
	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/angelmondragon/missions-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type awarder interface {
	Award(ctx context.Context, userID uuid.UUID, action experience.Action) (experience.Result, error)
}

// Service tracks subscription state driven by billing provider events.
type Service interface {
	Current(ctx context.Context, userID uuid.UUID) (View, error)
	EnsureCustomer(ctx context.Context, userID uuid.UUID, customerRef string) (*models.Subscription, error)
	RequestCancellation(ctx context.Context, userID uuid.UUID) (View, error)
	ApplyExternalEvent(ctx context.Context, event billing.Event) (ApplyResult, error)
}

// ApplyResult describes what applying one event changed.
type ApplyResult struct {
	Outcome      string
	Subscription *models.Subscription
	Purchase     *models.UsagePurchase
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	BillingRepo       billing.Repository
	UsageRepo         usage.Repository
	TransactionRunner txRunner
	Progression       awarder
	Metrics           *metrics.EntitlementMetrics
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	billingRepo billing.Repository
	usageRepo   usage.Repository
	tx          txRunner
	progression awarder
	metrics     *metrics.EntitlementMetrics
	logg        *logger.Logger
	now         func() time.Time
}

type pendingAward struct {
	userID uuid.UUID
	action experience.Action
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.UsageRepo == nil {
		return nil, fmt.Errorf("usage repo required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = db.UTCNow
	}
	return &service{
		billingRepo: params.BillingRepo,
		usageRepo:   params.UsageRepo,
		tx:          params.TransactionRunner,
		progression: params.Progression,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         clock,
	}, nil
}

func (s *service) Current(ctx context.Context, userID uuid.UUID) (View, error) {
	now := s.now()
	sub, err := s.billingRepo.FindCurrentSubscriptionByUser(ctx, userID, now)
	if err != nil {
		return View{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	return ToView(sub, now), nil
}

// EnsureCustomer provisions a pending subscription row for a billing customer.
func (s *service) EnsureCustomer(ctx context.Context, userID uuid.UUID, customerRef string) (*models.Subscription, error) {
	customerRef = strings.TrimSpace(customerRef)
	if userID == uuid.Nil || customerRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and customer reference are required")
	}

	existing, err := s.billingRepo.FindSubscriptionByCustomerRef(ctx, customerRef, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup billing customer")
	}
	if existing != nil {
		if existing.UserID != userID {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "billing customer belongs to another user")
		}
		return existing, nil
	}

	sub := &models.Subscription{
		UserID:             userID,
		BillingCustomerRef: customerRef,
		Status:             enums.SubscriptionStatusPending,
	}
	if err := s.billingRepo.CreateSubscription(ctx, sub); err != nil {
		if db.IsUniqueViolation(err) {
			return s.EnsureCustomer(ctx, userID, customerRef)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create billing customer")
	}
	return sub, nil
}

// RequestCancellation records a soft cancel. Status is left for the provider
// to change; entitlement continues until the period end.
func (s *service) RequestCancellation(ctx context.Context, userID uuid.UUID) (View, error) {
	now := s.now()
	var updated *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		latest, err := repo.FindCurrentSubscriptionByUser(ctx, userID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
		}
		if latest == nil || latest.BillingSubscriptionRef == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no subscription to cancel")
		}
		sub, err := repo.FindSubscriptionByCustomerRef(ctx, latest.BillingCustomerRef, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock subscription")
		}
		if sub.Status == enums.SubscriptionStatusCanceled || sub.CancelAtPeriodEnd {
			updated = sub
			return nil
		}
		sub.CancelAtPeriodEnd = true
		if sub.CurrentPeriodEnd == nil {
			sub.CurrentPeriodEnd = &now
		}
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cancellation")
		}
		updated = sub
		return nil
	})
	if err != nil {
		return View{}, err
	}
	s.logg.Info(s.logg.WithField(ctx, "subscription_id", updated.ID.String()), "subscription cancellation requested")
	return ToView(updated, now), nil
}

// ApplyExternalEvent applies one provider event inside a transaction. The
// event id is recorded in the same transaction, so a redelivered event
// returns a DUPLICATE_EVENT error and changes nothing.
func (s *service) ApplyExternalEvent(ctx context.Context, event billing.Event) (ApplyResult, error) {
	if err := event.Validate(); err != nil {
		return ApplyResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing event")
	}
	now := s.now()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	event.OccurredAt = event.OccurredAt.UTC()

	ctx = s.logg.WithFields(ctx, map[string]any{
		"billing_event_id":   event.ID,
		"billing_event_type": event.Type.String(),
		"customer_ref":       event.CustomerRef,
	})

	var (
		result ApplyResult
		awards []pendingAward
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		billingRepo := s.billingRepo.WithTx(tx)
		inserted, err := billingRepo.InsertEvent(ctx, &models.BillingEvent{
			EventID:     event.ID,
			Type:        event.Type,
			CustomerRef: event.CustomerRef,
			OccurredAt:  event.OccurredAt,
			AppliedAt:   now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record billing event")
		}
		if !inserted {
			return pkgerrors.New(pkgerrors.CodeDuplicateEvent, "billing event already applied")
		}

		switch event.Type {
		case enums.BillingEventTypeCheckoutCompleted:
			result, awards, err = s.applyCheckout(ctx, tx, event)
		case enums.BillingEventTypeSubscriptionUpdated:
			result, err = s.applySubscriptionChange(ctx, billingRepo, event, false)
		case enums.BillingEventTypeSubscriptionCanceled:
			result, err = s.applySubscriptionChange(ctx, billingRepo, event, true)
		}
		return err
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEvent) {
			s.metrics.IncBillingEvent(event.Type.String(), metrics.OutcomeBillingDup)
			s.logg.Info(ctx, "billing event already applied")
		}
		return ApplyResult{}, err
	}

	s.metrics.IncBillingEvent(event.Type.String(), result.Outcome)
	s.logg.Info(s.logg.WithField(ctx, "outcome", result.Outcome), "billing event applied")
	s.grantAwards(ctx, awards)
	return result, nil
}

func (s *service) applyCheckout(ctx context.Context, tx *gorm.DB, event billing.Event) (ApplyResult, []pendingAward, error) {
	result := ApplyResult{Outcome: metrics.OutcomeBillingApplied}
	var awards []pendingAward

	if event.SubscriptionRef != nil {
		repo := s.billingRepo.WithTx(tx)
		sub, err := s.lockOrProvision(ctx, repo, event)
		if err != nil {
			return ApplyResult{}, nil, err
		}
		switch {
		case sub == nil:
			// recorded and acknowledged so the provider stops redelivering
			s.logg.Warn(ctx, "checkout for unknown billing customer ignored")
			result.Outcome = metrics.OutcomeBillingStale
		case isStale(sub, event):
			return ApplyResult{Outcome: metrics.OutcomeBillingStale, Subscription: sub}, nil, nil
		default:
			award, err := s.activateFromCheckout(ctx, repo, sub, event)
			if err != nil {
				return ApplyResult{}, nil, err
			}
			if award != nil {
				awards = append(awards, *award)
			}
			result.Subscription = sub
		}
	}

	if event.PurchaseRef != nil {
		purchase, completed, err := s.completePurchase(ctx, s.usageRepo.WithTx(tx), event)
		if err != nil {
			return ApplyResult{}, nil, err
		}
		if completed {
			awards = append(awards, pendingAward{userID: purchase.UserID, action: experience.ActionPurchaseUsage})
		}
		result.Purchase = purchase
	}
	return result, awards, nil
}

func (s *service) activateFromCheckout(ctx context.Context, repo billing.Repository, sub *models.Subscription, event billing.Event) (*pendingAward, error) {
	wasActive := sub.Status == enums.SubscriptionStatusActive

	ref := strings.TrimSpace(*event.SubscriptionRef)
	sub.BillingSubscriptionRef = &ref
	sub.Status = enums.SubscriptionStatusPending
	if event.ProviderStatus == "" || billing.MapProviderStatus(event.ProviderStatus) == enums.SubscriptionStatusActive {
		sub.Status = enums.SubscriptionStatusActive
	}
	if event.PeriodEnd != nil {
		end := event.PeriodEnd.UTC()
		sub.CurrentPeriodEnd = &end
	}
	sub.CancelAtPeriodEnd = false
	sub.CanceledAt = nil
	sub.LastEventAt = &event.OccurredAt
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "activate subscription")
	}
	if !wasActive && sub.Status == enums.SubscriptionStatusActive {
		return &pendingAward{userID: sub.UserID, action: experience.ActionSubscribe}, nil
	}
	return nil, nil
}

// lockOrProvision returns nil when the customer is unknown and the event
// carries no user to provision it for.
func (s *service) lockOrProvision(ctx context.Context, repo billing.Repository, event billing.Event) (*models.Subscription, error) {
	sub, err := repo.FindSubscriptionByCustomerRef(ctx, event.CustomerRef, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock subscription")
	}
	if sub != nil {
		return sub, nil
	}
	if event.UserID == nil {
		return nil, nil
	}
	sub = &models.Subscription{
		UserID:             *event.UserID,
		BillingCustomerRef: event.CustomerRef,
		Status:             enums.SubscriptionStatusPending,
	}
	if err := repo.CreateSubscription(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "provision billing customer")
	}
	return sub, nil
}

func (s *service) completePurchase(ctx context.Context, repo usage.Repository, event billing.Event) (*models.UsagePurchase, bool, error) {
	ref := strings.TrimSpace(*event.PurchaseRef)
	var (
		purchase *models.UsagePurchase
		err      error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		purchase, err = repo.FindPurchase(ctx, id)
	} else {
		purchase, err = repo.FindPurchaseBySessionRef(ctx, ref)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchase")
	}

	err = repo.CompletePurchase(ctx, purchase.ID, event.OccurredAt, event.PaymentRef)
	switch {
	case errors.Is(err, usage.ErrPurchaseNotPending):
		return purchase, false, nil
	case err != nil:
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete purchase")
	}
	purchase.Status = enums.PurchaseStatusCompleted
	purchase.CompletedAt = &event.OccurredAt
	return purchase, true, nil
}

func (s *service) applySubscriptionChange(ctx context.Context, repo billing.Repository, event billing.Event, hardCancel bool) (ApplyResult, error) {
	sub, err := repo.FindSubscriptionByCustomerRef(ctx, event.CustomerRef, true)
	if err != nil {
		return ApplyResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock subscription")
	}
	if sub == nil {
		s.logg.Warn(ctx, "billing event for unknown customer ignored")
		return ApplyResult{Outcome: metrics.OutcomeBillingStale}, nil
	}
	if isStale(sub, event) {
		return ApplyResult{Outcome: metrics.OutcomeBillingStale, Subscription: sub}, nil
	}

	if event.SubscriptionRef != nil {
		ref := strings.TrimSpace(*event.SubscriptionRef)
		sub.BillingSubscriptionRef = &ref
	}
	if event.PeriodEnd != nil {
		end := event.PeriodEnd.UTC()
		sub.CurrentPeriodEnd = &end
	}
	if hardCancel {
		sub.Status = enums.SubscriptionStatusCanceled
		sub.CancelAtPeriodEnd = false
	} else {
		sub.Status = billing.MapProviderStatus(event.ProviderStatus)
		sub.CancelAtPeriodEnd = event.CancelAtPeriodEnd
	}
	if sub.Status == enums.SubscriptionStatusCanceled {
		if sub.CanceledAt == nil {
			sub.CanceledAt = &event.OccurredAt
		}
	} else {
		sub.CanceledAt = nil
	}
	sub.LastEventAt = &event.OccurredAt

	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return ApplyResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save subscription")
	}
	return ApplyResult{Outcome: metrics.OutcomeBillingApplied, Subscription: sub}, nil
}

// isStale reports an event older than the last one applied to sub.
func isStale(sub *models.Subscription, event billing.Event) bool {
	return sub.LastEventAt != nil && event.OccurredAt.Before(*sub.LastEventAt)
}

func (s *service) grantAwards(ctx context.Context, awards []pendingAward) {
	if s.progression == nil {
		return
	}
	for _, a := range awards {
		if _, err := s.progression.Award(ctx, a.userID, a.action); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "experience award after billing event failed")
		}
	}
}
