package enums

import "fmt"

// PurchaseStatus tracks whether a purchased usage block has been paid for.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
)

var validPurchaseStatuss = []PurchaseStatus{
	PurchaseStatusPending,
	PurchaseStatusCompleted,
}

// String implements fmt.Stringer.
func (s PurchaseStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s PurchaseStatus) IsValid() bool {
	for _, candidate := range validPurchaseStatuss {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePurchaseStatus converts raw input into a PurchaseStatus.
func ParsePurchaseStatus(value string) (PurchaseStatus, error) {
	for _, candidate := range validPurchaseStatuss {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase status %q", value)
}
