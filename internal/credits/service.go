package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/missions-backend/internal/experience"
	"github.com/angelmondragon/missions-backend/internal/usage"
	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/angelmondragon/missions-backend/pkg/metrics"
	"github.com/angelmondragon/missions-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type awarder interface {
	Award(ctx context.Context, userID uuid.UUID, action experience.Action) (experience.Result, error)
}

// Service defines the credit ledger operations.
type Service interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	Grant(ctx context.Context, userID uuid.UUID, amount int64, reason enums.CreditEntryReason) (int64, error)
	Spend(ctx context.Context, userID uuid.UUID, amount int64, reason enums.CreditEntryReason) (int64, error)
	ExchangeForUsage(ctx context.Context, userID uuid.UUID) (ExchangeResult, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (HistoryPage, error)
}

// EntryDTO is one ledger movement as shown to the owner.
type EntryDTO struct {
	ID        uuid.UUID               `json:"id"`
	Amount    int64                   `json:"amount"`
	Reason    enums.CreditEntryReason `json:"reason"`
	CreatedAt time.Time               `json:"created_at"`
}

type HistoryPage struct {
	Entries    []EntryDTO `json:"entries"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ExchangeResult is the outcome of converting credits into one usage unit.
type ExchangeResult struct {
	Balance  int64                 `json:"balance"`
	Spent    int64                 `json:"spent"`
	Purchase *models.UsagePurchase `json:"-"`
}

type ServiceParams struct {
	Repo              Repository
	UsageRepo         usage.Repository
	TransactionRunner txRunner
	Progression       awarder
	ExchangeRate      int64
	Metrics           *metrics.EntitlementMetrics
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	repo         Repository
	usageRepo    usage.Repository
	tx           txRunner
	progression  awarder
	exchangeRate int64
	metrics      *metrics.EntitlementMetrics
	logg         *logger.Logger
	now          func() time.Time
}

// NewService wires a credit ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("credit repository required")
	}
	if params.UsageRepo == nil {
		return nil, fmt.Errorf("usage repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.ExchangeRate <= 0 {
		return nil, fmt.Errorf("exchange rate must be positive")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = db.UTCNow
	}
	return &service{
		repo:         params.Repo,
		usageRepo:    params.UsageRepo,
		tx:           params.TransactionRunner,
		progression:  params.Progression,
		exchangeRate: params.ExchangeRate,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          clock,
	}, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load credit balance")
	}
	return balance, nil
}

// Grant appends a positive entry and returns the new balance.
func (s *service) Grant(ctx context.Context, userID uuid.UUID, amount int64, reason enums.CreditEntryReason) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if amount <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "grant amount must be positive")
	}
	if !reason.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid credit reason %q", reason))
	}

	var balance int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Append(ctx, &models.CreditEntry{UserID: userID, Amount: amount, Reason: reason, CreatedAt: s.now()}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append credit entry")
		}
		var err error
		balance, err = repo.Balance(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load credit balance")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id": userID.String(),
		"amount":  amount,
		"reason":  reason.String(),
	}), "credits granted")
	return balance, nil
}

// Spend appends a negative entry when the balance covers amount.
func (s *service) Spend(ctx context.Context, userID uuid.UUID, amount int64, reason enums.CreditEntryReason) (int64, error) {
	if err := s.validateSpend(userID, amount, reason); err != nil {
		return 0, err
	}
	var balance int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		balance, err = s.spendTx(ctx, tx, userID, amount, reason)
		return err
	})
	s.observeSpend(err)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ExchangeForUsage spends the exchange rate and creates one completed,
// non-expiring purchase of a single unit in the same transaction.
func (s *service) ExchangeForUsage(ctx context.Context, userID uuid.UUID) (ExchangeResult, error) {
	if err := s.validateSpend(userID, s.exchangeRate, enums.CreditEntryReasonExchange); err != nil {
		return ExchangeResult{}, err
	}

	var result ExchangeResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		balance, err := s.spendTx(ctx, tx, userID, s.exchangeRate, enums.CreditEntryReasonExchange)
		if err != nil {
			return err
		}
		now := s.now()
		purchase := &models.UsagePurchase{
			UserID:      userID,
			Amount:      1,
			Status:      enums.PurchaseStatusCompleted,
			CompletedAt: &now,
			FromCredits: true,
		}
		if err := s.usageRepo.WithTx(tx).CreatePurchase(ctx, purchase); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create exchanged purchase")
		}
		result = ExchangeResult{Balance: balance, Spent: s.exchangeRate, Purchase: purchase}
		return nil
	})
	s.observeSpend(err)
	if err != nil {
		return ExchangeResult{}, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":     userID.String(),
		"purchase_id": result.Purchase.ID.String(),
	})
	s.logg.Info(ctx, "credits exchanged for usage")
	if s.progression != nil {
		if _, err := s.progression.Award(ctx, userID, experience.ActionExchangeCredits); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "experience award after credit exchange failed")
		}
	}
	return result, nil
}

// History pages through the ledger newest first.
func (s *service) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (HistoryPage, error) {
	if userID == uuid.Nil {
		return HistoryPage{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return HistoryPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.ListByUser(ctx, userID, params.Limit, cursor)
	if err != nil {
		return HistoryPage{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list credit entries")
	}

	page := HistoryPage{Entries: make([]EntryDTO, 0, len(rows))}
	for _, row := range rows {
		page.Entries = append(page.Entries, EntryDTO{
			ID:        row.ID,
			Amount:    row.Amount,
			Reason:    row.Reason,
			CreatedAt: row.CreatedAt,
		})
	}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

func (s *service) validateSpend(userID uuid.UUID, amount int64, reason enums.CreditEntryReason) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "spend amount must be positive")
	}
	if !reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid credit reason %q", reason))
	}
	return nil
}

// spendTx runs check-then-write under the principal lock shared with the
// usage ledger, so two spends for one user cannot both pass the check.
func (s *service) spendTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount int64, reason enums.CreditEntryReason) (int64, error) {
	now := s.now()
	if err := s.usageRepo.WithTx(tx).LockPrincipal(ctx, usage.UserKey(userID), now); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock principal")
	}
	repo := s.repo.WithTx(tx)
	balance, err := repo.Balance(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load credit balance")
	}
	if balance < amount {
		return 0, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "not enough credits").
			WithDetails(map[string]any{"balance": balance, "required": amount})
	}
	if err := repo.Append(ctx, &models.CreditEntry{UserID: userID, Amount: -amount, Reason: reason, CreatedAt: now}); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append credit entry")
	}
	return balance - amount, nil
}

func (s *service) observeSpend(err error) {
	switch {
	case err == nil:
		s.metrics.IncCreditSpend(metrics.OutcomeCreditSpent)
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance):
		s.metrics.IncCreditSpend(metrics.OutcomeCreditShort)
	}
}
