package usage

import (
	"errors"
	"sort"

	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	"github.com/google/uuid"
)

// ErrExhausted reports that neither the base allowance nor any purchase has capacity.
var ErrExhausted = errors.New("usage allowance exhausted")

// FundingSource identifies the bucket paying for one action. PurchaseID is set
// only for purchase-funded actions.
type FundingSource struct {
	Kind       enums.FundingSourceKind `json:"kind"`
	PurchaseID *uuid.UUID              `json:"purchase_id,omitempty"`
}

func BaseSource() FundingSource {
	return FundingSource{Kind: enums.FundingSourceKindBase}
}

func PurchaseSource(id uuid.UUID) FundingSource {
	return FundingSource{Kind: enums.FundingSourceKindPurchase, PurchaseID: &id}
}

func (f FundingSource) IsBase() bool {
	return f.PurchaseID == nil
}

// PurchaseCapacity pairs a completed purchase with the units already taken from it.
type PurchaseCapacity struct {
	Purchase models.UsagePurchase
	Consumed int64
}

// Remaining is the unconsumed capacity, never negative.
func (p PurchaseCapacity) Remaining() int64 {
	return RemainingCapacity(int64(p.Purchase.Amount), p.Consumed)
}

func RemainingCapacity(amount, consumed int64) int64 {
	if consumed >= amount {
		return 0
	}
	return amount - consumed
}

// SelectFundingSource picks the base allowance while baseUsed < baseLimit and
// otherwise the oldest completed purchase with capacity left.
func SelectFundingSource(baseUsed, baseLimit int64, purchases []PurchaseCapacity) (FundingSource, error) {
	if baseUsed < baseLimit {
		return BaseSource(), nil
	}
	for _, p := range OrderFIFO(purchases) {
		if p.Purchase.Status != enums.PurchaseStatusCompleted {
			continue
		}
		if p.Remaining() > 0 {
			return PurchaseSource(p.Purchase.ID), nil
		}
	}
	return FundingSource{}, ErrExhausted
}

// OrderFIFO returns purchases ordered by completion time, then creation time.
// Purchases without a completion time sort last. The id only settles rows
// created in the same instant, so that case is deterministic but arbitrary.
func OrderFIFO(purchases []PurchaseCapacity) []PurchaseCapacity {
	out := make([]PurchaseCapacity, len(purchases))
	copy(out, purchases)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Purchase, out[j].Purchase
		switch {
		case a.CompletedAt == nil && b.CompletedAt == nil:
		case a.CompletedAt == nil:
			return false
		case b.CompletedAt == nil:
			return true
		case !a.CompletedAt.Equal(*b.CompletedAt):
			return a.CompletedAt.Before(*b.CompletedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}

// PoolSummary aggregates purchased capacity across all completed purchases.
type PoolSummary struct {
	Total     int64 `json:"total"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

func Summarize(purchases []PurchaseCapacity) PoolSummary {
	var s PoolSummary
	for _, p := range purchases {
		if p.Purchase.Status != enums.PurchaseStatusCompleted {
			continue
		}
		s.Total += int64(p.Purchase.Amount)
		s.Used += p.Consumed
		s.Remaining += p.Remaining()
	}
	return s
}
