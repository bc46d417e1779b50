package usage

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

// ErrPurchaseNotPending is returned when completing a purchase that is missing
// or already completed.
var ErrPurchaseNotPending = errors.New("purchase is not pending")

// Repository manages persistence for usage records, holds and purchases.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	LockPrincipal(ctx context.Context, principalKey string, now time.Time) error

	CountBaseUsage(ctx context.Context, principalKey string, windowStart, now time.Time) (int64, error)
	CountPurchasedUsage(ctx context.Context, principalKey string) (int64, error)
	ListCompletedPurchases(ctx context.Context, userID uuid.UUID) ([]models.UsagePurchase, error)
	ConsumedByPurchase(ctx context.Context, purchaseIDs []uuid.UUID, now time.Time) (map[uuid.UUID]int64, error)
	PurchaseCapacities(ctx context.Context, userID uuid.UUID, now time.Time) ([]PurchaseCapacity, error)

	CreateHold(ctx context.Context, hold *models.UsageHold) error
	FindHold(ctx context.Context, id uuid.UUID) (*models.UsageHold, error)
	DeleteHold(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error)

	AppendRecord(ctx context.Context, record *models.UsageRecord) (bool, error)
	FindRecordByIdempotencyKey(ctx context.Context, key string) (*models.UsageRecord, error)

	CreatePurchase(ctx context.Context, purchase *models.UsagePurchase) error
	FindPurchase(ctx context.Context, id uuid.UUID) (*models.UsagePurchase, error)
	FindPurchaseBySessionRef(ctx context.Context, ref string) (*models.UsagePurchase, error)
	CompletePurchase(ctx context.Context, id uuid.UUID, completedAt time.Time, paymentRef *string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockPrincipal serializes writers for one principal. The row is created on
// first use and its version bumped; the update holds the row lock until the
// surrounding transaction ends.
func (r *repository) LockPrincipal(ctx context.Context, principalKey string, now time.Time) error {
	account := models.EntitlementAccount{PrincipalKey: principalKey, UpdatedAt: now}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&account).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.EntitlementAccount{}).
		Where("principal_key = ?", principalKey).
		Updates(map[string]any{
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		}).Error
}

func (r *repository) CountBaseUsage(ctx context.Context, principalKey string, windowStart, now time.Time) (int64, error) {
	var recorded int64
	if err := r.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("principal_key = ? AND purchase_id IS NULL AND created_at >= ?", principalKey, windowStart).
		Count(&recorded).Error; err != nil {
		return 0, err
	}
	var held int64
	if err := r.db.WithContext(ctx).
		Model(&models.UsageHold{}).
		Where("principal_key = ? AND purchase_id IS NULL AND expires_at > ?", principalKey, now).
		Count(&held).Error; err != nil {
		return 0, err
	}
	return recorded + held, nil
}

func (r *repository) CountPurchasedUsage(ctx context.Context, principalKey string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("principal_key = ? AND purchase_id IS NOT NULL", principalKey).
		Count(&n).Error
	return n, err
}

func (r *repository) ListCompletedPurchases(ctx context.Context, userID uuid.UUID) ([]models.UsagePurchase, error) {
	var purchases []models.UsagePurchase
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.PurchaseStatusCompleted).
		Order("completed_at ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

type purchaseCount struct {
	PurchaseID uuid.UUID
	N          int64
}

// ConsumedByPurchase counts records plus live holds per purchase.
func (r *repository) ConsumedByPurchase(ctx context.Context, purchaseIDs []uuid.UUID, now time.Time) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(purchaseIDs))
	if len(purchaseIDs) == 0 {
		return out, nil
	}

	var recorded []purchaseCount
	if err := r.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Select("purchase_id, COUNT(*) AS n").
		Where("purchase_id IN ?", purchaseIDs).
		Group("purchase_id").
		Scan(&recorded).Error; err != nil {
		return nil, err
	}
	var held []purchaseCount
	if err := r.db.WithContext(ctx).
		Model(&models.UsageHold{}).
		Select("purchase_id, COUNT(*) AS n").
		Where("purchase_id IN ? AND expires_at > ?", purchaseIDs, now).
		Group("purchase_id").
		Scan(&held).Error; err != nil {
		return nil, err
	}
	for _, row := range recorded {
		out[row.PurchaseID] += row.N
	}
	for _, row := range held {
		out[row.PurchaseID] += row.N
	}
	return out, nil
}

func (r *repository) PurchaseCapacities(ctx context.Context, userID uuid.UUID, now time.Time) ([]PurchaseCapacity, error) {
	purchases, err := r.ListCompletedPurchases(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(purchases))
	for _, p := range purchases {
		ids = append(ids, p.ID)
	}
	consumed, err := r.ConsumedByPurchase(ctx, ids, now)
	if err != nil {
		return nil, err
	}
	out := make([]PurchaseCapacity, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, PurchaseCapacity{Purchase: p, Consumed: consumed[p.ID]})
	}
	return out, nil
}

func (r *repository) CreateHold(ctx context.Context, hold *models.UsageHold) error {
	return r.db.WithContext(ctx).Create(hold).Error
}

func (r *repository) FindHold(ctx context.Context, id uuid.UUID) (*models.UsageHold, error) {
	var hold models.UsageHold
	if err := r.db.WithContext(ctx).First(&hold, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *repository) DeleteHold(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.UsageHold{})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.UsageHold{})
	return res.RowsAffected, res.Error
}

// AppendRecord inserts record and reports false when a record with the same
// idempotency key already exists.
func (r *repository) AppendRecord(ctx context.Context, record *models.UsageRecord) (bool, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) FindRecordByIdempotencyKey(ctx context.Context, key string) (*models.UsageRecord, error) {
	var record models.UsageRecord
	if err := r.db.WithContext(ctx).First(&record, "idempotency_key = ?", key).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) CreatePurchase(ctx context.Context, purchase *models.UsagePurchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repository) FindPurchase(ctx context.Context, id uuid.UUID) (*models.UsagePurchase, error) {
	var purchase models.UsagePurchase
	if err := r.db.WithContext(ctx).First(&purchase, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindPurchaseBySessionRef(ctx context.Context, ref string) (*models.UsagePurchase, error) {
	var purchase models.UsagePurchase
	if err := r.db.WithContext(ctx).First(&purchase, "billing_session_ref = ?", ref).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

// CompletePurchase moves a pending purchase to completed. A purchase that is
// already completed is left untouched and reported via ErrPurchaseNotPending.
func (r *repository) CompletePurchase(ctx context.Context, id uuid.UUID, completedAt time.Time, paymentRef *string) error {
	updates := map[string]any{
		"status":       enums.PurchaseStatusCompleted,
		"completed_at": completedAt,
	}
	if paymentRef != nil {
		updates["billing_payment_ref"] = *paymentRef
	}
	res := r.db.WithContext(ctx).
		Model(&models.UsagePurchase{}).
		Where("id = ? AND status = ?", id, enums.PurchaseStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPurchaseNotPending
	}
	return nil
}
