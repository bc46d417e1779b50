package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/missions-backend/internal/billing"
	"github.com/angelmondragon/missions-backend/internal/subscriptions"
	"github.com/angelmondragon/missions-backend/internal/usage"
	"github.com/angelmondragon/missions-backend/pkg/config"
	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/angelmondragon/missions-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Resolver is the single admission contract for gated actions. Callers check
// admission, perform the action, then record or release.
type Resolver interface {
	CheckAdmission(ctx context.Context, principal Principal, req AdmissionRequest) (Admission, error)
	RecordUsage(ctx context.Context, admission Admission) error
	ReleaseAdmission(ctx context.Context, admission Admission) error
	RemainingAllowance(ctx context.Context, principal Principal) (AllowanceReport, error)
}

type AdmissionRequest struct {
	Extended bool
}

// Admission is a granted reservation of one unit. Its ID is the idempotency
// key of the usage record written on confirmation.
type Admission struct {
	ID        uuid.UUID           `json:"id"`
	Principal Principal           `json:"-"`
	Source    usage.FundingSource `json:"source"`
	ExpiresAt time.Time           `json:"expires_at"`
	Degraded  bool                `json:"-"`
}

// BaseAllowance is the rolling-window tier allowance.
type BaseAllowance struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// AllowanceReport keeps base and purchased figures apart; Remaining is the
// only combined value.
type AllowanceReport struct {
	Base      BaseAllowance     `json:"base"`
	Purchased usage.PoolSummary `json:"purchased"`
	Remaining int64             `json:"remaining"`
	Entitled  bool              `json:"entitled"`
	PeriodEnd *time.Time        `json:"period_end,omitempty"`
	Window    string            `json:"window"`
}

type ResolverParams struct {
	Config            config.EntitlementsConfig
	UsageRepo         usage.Repository
	BillingRepo       billing.Repository
	TransactionRunner txRunner
	// UsageTracking is the startup capability check result. When false every
	// admission is granted and recording is skipped.
	UsageTracking bool
	Metrics       *metrics.EntitlementMetrics
	Logger        *logger.Logger
	Clock         func() time.Time
}

type resolver struct {
	cfg           config.EntitlementsConfig
	usageRepo     usage.Repository
	billingRepo   billing.Repository
	tx            txRunner
	usageTracking bool
	metrics       *metrics.EntitlementMetrics
	logg          *logger.Logger
	now           func() time.Time
}

func NewResolver(params ResolverParams) (Resolver, error) {
	if params.UsageRepo == nil {
		return nil, fmt.Errorf("usage repo required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	if params.Config.RecordAttempts == 0 {
		params.Config.RecordAttempts = 1
	}
	clock := params.Clock
	if clock == nil {
		clock = db.UTCNow
	}
	if !params.UsageTracking {
		params.Logger.Warn(context.Background(), "usage tracking tables missing; admissions will not be metered")
	}
	return &resolver{
		cfg:           params.Config,
		usageRepo:     params.UsageRepo,
		billingRepo:   params.BillingRepo,
		tx:            params.TransactionRunner,
		usageTracking: params.UsageTracking,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           clock,
	}, nil
}

type tier struct {
	entitled  bool
	periodEnd *time.Time
	limit     int64
	window    time.Duration
}

func (r *resolver) tierFor(ctx context.Context, repo billing.Repository, principal Principal, now time.Time) (tier, error) {
	if principal.IsAnonymous() {
		return tier{limit: int64(r.cfg.FreeLimit), window: r.cfg.AnonymousWindow}, nil
	}
	sub, err := repo.FindCurrentSubscriptionByUser(ctx, principal.UserID, now)
	if err != nil {
		return tier{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	t := tier{window: r.cfg.BaseWindow}
	t.entitled = subscriptions.IsEntitled(sub, now)
	t.limit = subscriptions.BaseLimit(t.entitled, r.cfg)
	if sub != nil {
		t.periodEnd = sub.CurrentPeriodEnd
	}
	return t, nil
}

// CheckAdmission decides under the principal lock and, on admit, writes a
// hold that counts against the allowance until it is recorded, released or
// expires.
func (r *resolver) CheckAdmission(ctx context.Context, principal Principal, req AdmissionRequest) (Admission, error) {
	if err := principal.validate(); err != nil {
		return Admission{}, err
	}
	ctx = r.logg.WithPrincipal(ctx, principal.Kind.String(), principal.Key())
	now := r.now()

	if !r.usageTracking {
		return r.degradedAdmission(ctx, principal, req, now)
	}

	var admission Admission
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		usageRepo := r.usageRepo.WithTx(tx)
		if err := usageRepo.LockPrincipal(ctx, principal.Key(), now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock principal")
		}

		t, err := r.tierFor(ctx, r.billingRepo.WithTx(tx), principal, now)
		if err != nil {
			return err
		}
		if req.Extended && !t.entitled {
			return featureNotUnlocked()
		}

		baseUsed, err := usageRepo.CountBaseUsage(ctx, principal.Key(), now.Add(-t.window), now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count base usage")
		}
		var purchases []usage.PurchaseCapacity
		if baseUsed >= t.limit && !principal.IsAnonymous() {
			purchases, err = usageRepo.PurchaseCapacities(ctx, principal.UserID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchases")
			}
		}

		source, err := usage.SelectFundingSource(baseUsed, t.limit, purchases)
		if errors.Is(err, usage.ErrExhausted) {
			return pkgerrors.New(pkgerrors.CodeQuotaExhausted, "no usage allowance remaining").
				WithDetails(map[string]any{
					"base_used":  baseUsed,
					"base_limit": t.limit,
					"remaining":  0,
					"entitled":   t.entitled,
				})
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "select funding source")
		}

		hold := &models.UsageHold{
			ID:           uuid.New(),
			PrincipalKey: principal.Key(),
			UserID:       principal.userIDPtr(),
			SessionID:    principal.sessionPtr(),
			PurchaseID:   source.PurchaseID,
			CreatedAt:    now,
			ExpiresAt:    now.Add(r.cfg.HoldTTL),
		}
		if err := usageRepo.CreateHold(ctx, hold); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserve usage")
		}
		admission = Admission{ID: hold.ID, Principal: principal, Source: source, ExpiresAt: hold.ExpiresAt}
		return nil
	})
	if err != nil {
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeQuotaExhausted):
			r.metrics.IncAdmission(metrics.OutcomeExhausted, "")
		case pkgerrors.IsCode(err, pkgerrors.CodeFeatureNotUnlocked):
			r.metrics.IncAdmission(metrics.OutcomeNotUnlocked, "")
		}
		return Admission{}, err
	}

	r.metrics.IncAdmission(metrics.OutcomeAdmitted, admission.Source.Kind.String())
	r.logg.Debug(r.logg.WithFields(ctx, map[string]any{
		"admission_id": admission.ID.String(),
		"source":       admission.Source.Kind.String(),
	}), "admission granted")
	return admission, nil
}

func (r *resolver) degradedAdmission(ctx context.Context, principal Principal, req AdmissionRequest, now time.Time) (Admission, error) {
	if req.Extended {
		t, err := r.tierFor(ctx, r.billingRepo, principal, now)
		if err != nil {
			return Admission{}, err
		}
		if !t.entitled {
			r.metrics.IncAdmission(metrics.OutcomeNotUnlocked, "")
			return Admission{}, featureNotUnlocked()
		}
	}
	r.metrics.IncAdmission(metrics.OutcomeDegraded, enums.FundingSourceKindBase.String())
	r.logg.Warn(ctx, "usage tracking unavailable; admitting without metering")
	return Admission{
		ID:        uuid.New(),
		Principal: principal,
		Source:    usage.BaseSource(),
		ExpiresAt: now.Add(r.cfg.HoldTTL),
		Degraded:  true,
	}, nil
}

func featureNotUnlocked() error {
	return pkgerrors.New(pkgerrors.CodeFeatureNotUnlocked, "extended mode requires an active subscription")
}

// RecordUsage converts the admission's hold into a usage record. It is
// idempotent on the admission id and retries transient store failures, since
// a lost write would hand out the action for free.
func (r *resolver) RecordUsage(ctx context.Context, admission Admission) error {
	if admission.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "admission id required")
	}
	if err := admission.Principal.validate(); err != nil {
		return err
	}
	ctx = r.logg.WithFields(r.logg.WithPrincipal(ctx, admission.Principal.Kind.String(), admission.Principal.Key()),
		map[string]any{"admission_id": admission.ID.String()})
	if admission.Degraded || !r.usageTracking {
		r.logg.Warn(ctx, "usage tracking unavailable; record skipped")
		return nil
	}

	attempt := 0
	backoff := retry.WithMaxRetries(r.cfg.RecordAttempts-1, retry.NewExponential(r.cfg.RecordBackoff))
	var recorded bool
	var source usage.FundingSource
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			r.metrics.IncRecordRetry()
		}
		var err error
		recorded, source, err = r.recordOnce(ctx, admission)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && pkgerrors.MetadataFor(typed.Code()).Expected {
				return err
			}
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"attempt": attempt, "error": err.Error()}), "usage record write failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			if pkgerrors.MetadataFor(typed.Code()).Expected {
				r.logg.Warn(r.logg.WithField(ctx, "code", string(typed.Code())), "usage record rejected")
			} else {
				r.logg.Error(r.logg.WithField(ctx, "attempts", attempt), "usage record could not be written", err)
			}
			return err
		}
		r.logg.Error(r.logg.WithField(ctx, "attempts", attempt), "usage record could not be written", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record usage")
	}
	if recorded {
		r.metrics.IncRecorded(source.Kind.String())
	}
	return nil
}

func (r *resolver) recordOnce(ctx context.Context, admission Admission) (bool, usage.FundingSource, error) {
	now := r.now()
	source := admission.Source
	created := false
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.usageRepo.WithTx(tx)
		if err := repo.LockPrincipal(ctx, admission.Principal.Key(), now); err != nil {
			return err
		}

		existing, err := repo.FindRecordByIdempotencyKey(ctx, admission.ID.String())
		switch {
		case err == nil:
			source = usage.BaseSource()
			if existing.PurchaseID != nil {
				source = usage.PurchaseSource(*existing.PurchaseID)
			}
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		hold, err := repo.FindHold(ctx, admission.ID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			hold = nil
		case err != nil:
			return err
		}
		if hold != nil {
			if hold.PrincipalKey != admission.Principal.Key() {
				return pkgerrors.New(pkgerrors.CodeValidation, "admission belongs to another principal")
			}
			source = usage.BaseSource()
			if hold.PurchaseID != nil {
				source = usage.PurchaseSource(*hold.PurchaseID)
			}
		}

		// A lapsed hold no longer reserves its unit; another admission may
		// have taken it in the meantime.
		if hold == nil || !hold.ExpiresAt.After(now) {
			if err := r.recheckCapacity(ctx, tx, admission.Principal, source, now); err != nil {
				return err
			}
		}

		created, err = repo.AppendRecord(ctx, &models.UsageRecord{
			PrincipalKey:   admission.Principal.Key(),
			UserID:         admission.Principal.userIDPtr(),
			SessionID:      admission.Principal.sessionPtr(),
			PurchaseID:     source.PurchaseID,
			IdempotencyKey: admission.ID.String(),
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		if hold != nil {
			if _, err := repo.DeleteHold(ctx, hold.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return created, source, err
}

// recheckCapacity runs under the principal lock for admissions whose hold is
// gone. Only live holds are counted, so the lapsed hold itself is excluded.
func (r *resolver) recheckCapacity(ctx context.Context, tx *gorm.DB, principal Principal, source usage.FundingSource, now time.Time) error {
	repo := r.usageRepo.WithTx(tx)
	if source.IsBase() {
		t, err := r.tierFor(ctx, r.billingRepo.WithTx(tx), principal, now)
		if err != nil {
			return err
		}
		used, err := repo.CountBaseUsage(ctx, principal.Key(), now.Add(-t.window), now)
		if err != nil {
			return err
		}
		if used >= t.limit {
			return pkgerrors.New(pkgerrors.CodeQuotaExhausted, "admission expired and base allowance is used up").
				WithDetails(map[string]any{"base_used": used, "base_limit": t.limit})
		}
		return nil
	}

	purchase, err := repo.FindPurchase(ctx, *source.PurchaseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeInvalidPurchaseState, "purchase not found")
	}
	if err != nil {
		return err
	}
	if purchase.Status != enums.PurchaseStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeInvalidPurchaseState, "purchase is not completed")
	}
	consumed, err := repo.ConsumedByPurchase(ctx, []uuid.UUID{purchase.ID}, now)
	if err != nil {
		return err
	}
	if usage.RemainingCapacity(int64(purchase.Amount), consumed[purchase.ID]) == 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidPurchaseState, "purchase has no remaining capacity").
			WithDetails(map[string]any{"purchase_id": purchase.ID.String(), "amount": purchase.Amount, "consumed": consumed[purchase.ID]})
	}
	return nil
}

// ReleaseAdmission drops the hold for an action that did not complete.
// Releasing twice, or after the hold expired, is a no-op.
func (r *resolver) ReleaseAdmission(ctx context.Context, admission Admission) error {
	if admission.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "admission id required")
	}
	if admission.Degraded || !r.usageTracking {
		return nil
	}
	deleted, err := r.usageRepo.DeleteHold(ctx, admission.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release admission")
	}
	if deleted {
		r.metrics.IncReleased()
		r.logg.Debug(r.logg.WithField(ctx, "admission_id", admission.ID.String()), "admission released")
	}
	return nil
}

func (r *resolver) RemainingAllowance(ctx context.Context, principal Principal) (AllowanceReport, error) {
	if err := principal.validate(); err != nil {
		return AllowanceReport{}, err
	}
	now := r.now()
	t, err := r.tierFor(ctx, r.billingRepo, principal, now)
	if err != nil {
		return AllowanceReport{}, err
	}
	report := AllowanceReport{
		Base:      BaseAllowance{Limit: t.limit},
		Entitled:  t.entitled,
		PeriodEnd: t.periodEnd,
		Window:    t.window.String(),
	}

	if r.usageTracking {
		used, err := r.usageRepo.CountBaseUsage(ctx, principal.Key(), now.Add(-t.window), now)
		if err != nil {
			return AllowanceReport{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count base usage")
		}
		report.Base.Used = used
		if !principal.IsAnonymous() {
			purchases, err := r.usageRepo.PurchaseCapacities(ctx, principal.UserID, now)
			if err != nil {
				return AllowanceReport{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchases")
			}
			report.Purchased = usage.Summarize(purchases)
		}
	}
	report.Base.Remaining = usage.RemainingCapacity(report.Base.Limit, report.Base.Used)
	report.Remaining = report.Base.Remaining + report.Purchased.Remaining
	return report, nil
}
