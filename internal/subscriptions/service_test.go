package subscriptions

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/missions-backend/internal/billing"
	"github.com/angelmondragon/missions-backend/internal/experience"
	"github.com/angelmondragon/missions-backend/internal/usage"
	"github.com/angelmondragon/missions-backend/pkg/db/dbtest"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/angelmondragon/missions-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingAwarder struct {
	awards []experience.Action
}

func (r *recordingAwarder) Award(ctx context.Context, userID uuid.UUID, action experience.Action) (experience.Result, error) {
	r.awards = append(r.awards, action)
	return experience.Result{}, nil
}

type fixture struct {
	svc     Service
	billing billing.Repository
	usage   usage.Repository
	awarder *recordingAwarder
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	f := &fixture{
		billing: billing.NewRepository(client.DB()),
		usage:   usage.NewRepository(client.DB()),
		awarder: &recordingAwarder{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		BillingRepo:       f.billing,
		UsageRepo:         f.usage,
		TransactionRunner: client,
		Progression:       f.awarder,
		Metrics:           metrics.NewEntitlementMetrics(nil),
		Logger:            logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Clock:             func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func strPtr(s string) *string { return &s }

func TestCheckoutActivatesSubscriptionOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()
	_, err := f.svc.EnsureCustomer(ctx, userID, "cus_1")
	require.NoError(t, err)

	periodEnd := f.now.Add(30 * 24 * time.Hour)
	event := billing.Event{
		ID:              "evt_checkout",
		Type:            enums.BillingEventTypeCheckoutCompleted,
		CustomerRef:     "cus_1",
		SubscriptionRef: strPtr("sub_1"),
		ProviderStatus:  "active",
		PeriodEnd:       &periodEnd,
		OccurredAt:      f.now,
	}
	res, err := f.svc.ApplyExternalEvent(ctx, event)
	require.NoError(t, err)
	require.Equal(t, metrics.OutcomeBillingApplied, res.Outcome)
	require.Equal(t, enums.SubscriptionStatusActive, res.Subscription.Status)

	_, err = f.svc.ApplyExternalEvent(ctx, event)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEvent))

	require.Equal(t, []experience.Action{experience.ActionSubscribe}, f.awarder.awards)

	view, err := f.svc.Current(ctx, userID)
	require.NoError(t, err)
	require.True(t, view.Entitled)
}

func TestSubscriptionUpdatedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()
	_, err := f.svc.EnsureCustomer(ctx, userID, "cus_1")
	require.NoError(t, err)

	periodEnd := f.now.Add(7 * 24 * time.Hour)
	event := billing.Event{
		ID:                "evt_upd",
		Type:              enums.BillingEventTypeSubscriptionUpdated,
		CustomerRef:       "cus_1",
		ProviderStatus:    "active",
		PeriodEnd:         &periodEnd,
		CancelAtPeriodEnd: true,
		OccurredAt:        f.now,
	}
	_, err = f.svc.ApplyExternalEvent(ctx, event)
	require.NoError(t, err)
	once, err := f.billing.FindSubscriptionByCustomerRef(ctx, "cus_1", false)
	require.NoError(t, err)

	_, err = f.svc.ApplyExternalEvent(ctx, event)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEvent))
	twice, err := f.billing.FindSubscriptionByCustomerRef(ctx, "cus_1", false)
	require.NoError(t, err)

	require.Equal(t, once.Status, twice.Status)
	require.Equal(t, once.CancelAtPeriodEnd, twice.CancelAtPeriodEnd)
	require.True(t, once.CurrentPeriodEnd.Equal(*twice.CurrentPeriodEnd))
	require.True(t, once.UpdatedAt.Equal(twice.UpdatedAt))
	require.True(t, IsEntitled(twice, f.now))
}

func TestStaleEventsAreIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.EnsureCustomer(ctx, uuid.New(), "cus_1")
	require.NoError(t, err)

	_, err = f.svc.ApplyExternalEvent(ctx, billing.Event{
		ID: "evt_new", Type: enums.BillingEventTypeSubscriptionCanceled, CustomerRef: "cus_1", OccurredAt: f.now,
	})
	require.NoError(t, err)

	res, err := f.svc.ApplyExternalEvent(ctx, billing.Event{
		ID: "evt_old", Type: enums.BillingEventTypeSubscriptionUpdated, CustomerRef: "cus_1",
		ProviderStatus: "active", OccurredAt: f.now.Add(-time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, metrics.OutcomeBillingStale, res.Outcome)

	sub, err := f.billing.FindSubscriptionByCustomerRef(ctx, "cus_1", false)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
}

func TestStatusMappingForUnknownProviderStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.EnsureCustomer(ctx, uuid.New(), "cus_1")
	require.NoError(t, err)

	res, err := f.svc.ApplyExternalEvent(ctx, billing.Event{
		ID: "evt_1", Type: enums.BillingEventTypeSubscriptionUpdated, CustomerRef: "cus_1", ProviderStatus: "unpaid", OccurredAt: f.now,
	})
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusPastDue, res.Subscription.Status)
}

func TestCheckoutCompletesPurchase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()
	purchase := &models.UsagePurchase{UserID: userID, Amount: 30, Status: enums.PurchaseStatusPending, BillingSessionRef: strPtr("cs_1")}
	require.NoError(t, f.usage.CreatePurchase(ctx, purchase))

	event := billing.Event{
		ID: "evt_pay", Type: enums.BillingEventTypeCheckoutCompleted, CustomerRef: "cus_1",
		PurchaseRef: strPtr("cs_1"), PaymentRef: strPtr("pi_1"), OccurredAt: f.now,
	}
	res, err := f.svc.ApplyExternalEvent(ctx, event)
	require.NoError(t, err)
	require.Equal(t, enums.PurchaseStatusCompleted, res.Purchase.Status)

	event.ID = "evt_pay_retry"
	res, err = f.svc.ApplyExternalEvent(ctx, event)
	require.NoError(t, err)
	require.Equal(t, []experience.Action{experience.ActionPurchaseUsage}, f.awarder.awards)

	caps, err := f.usage.PurchaseCapacities(ctx, userID, f.now)
	require.NoError(t, err)
	require.Len(t, caps, 1)
	require.Equal(t, int64(30), caps[0].Remaining())
}

func TestCheckoutForUnknownCustomerIsRecordedAsStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()
	purchase := &models.UsagePurchase{UserID: userID, Amount: 10, Status: enums.PurchaseStatusPending, BillingSessionRef: strPtr("cs_9")}
	require.NoError(t, f.usage.CreatePurchase(ctx, purchase))

	event := billing.Event{
		ID: "evt_orphan", Type: enums.BillingEventTypeCheckoutCompleted, CustomerRef: "cus_unknown",
		SubscriptionRef: strPtr("sub_9"), PurchaseRef: strPtr("cs_9"), ProviderStatus: "active", OccurredAt: f.now,
	}
	res, err := f.svc.ApplyExternalEvent(ctx, event)
	require.NoError(t, err)
	require.Equal(t, metrics.OutcomeBillingStale, res.Outcome)
	require.Nil(t, res.Subscription)
	require.Equal(t, enums.PurchaseStatusCompleted, res.Purchase.Status)

	sub, err := f.billing.FindSubscriptionByCustomerRef(ctx, "cus_unknown", false)
	require.NoError(t, err)
	require.Nil(t, sub)

	_, err = f.svc.ApplyExternalEvent(ctx, event)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEvent))
	require.Equal(t, []experience.Action{experience.ActionPurchaseUsage}, f.awarder.awards)
}

func TestRequestCancellationIsSoft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()
	_, err := f.svc.EnsureCustomer(ctx, userID, "cus_1")
	require.NoError(t, err)

	_, err = f.svc.RequestCancellation(ctx, userID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.ApplyExternalEvent(ctx, billing.Event{
		ID: "evt_checkout", Type: enums.BillingEventTypeCheckoutCompleted, CustomerRef: "cus_1",
		SubscriptionRef: strPtr("sub_1"), ProviderStatus: "active", OccurredAt: f.now,
	})
	require.NoError(t, err)

	view, err := f.svc.RequestCancellation(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusActive, view.Status)
	require.True(t, view.CancelAtPeriodEnd)
	require.NotNil(t, view.PeriodEnd)
	require.True(t, view.PeriodEnd.Equal(f.now))
	require.True(t, view.Entitled)

	f.now = f.now.Add(time.Minute)
	view, err = f.svc.Current(ctx, userID)
	require.NoError(t, err)
	require.False(t, view.Entitled)
}

func TestEnsureCustomerRejectsForeignOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.EnsureCustomer(ctx, uuid.New(), "cus_1")
	require.NoError(t, err)

	_, err = f.svc.EnsureCustomer(ctx, uuid.New(), "cus_1")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}
