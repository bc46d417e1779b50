package enums

import "fmt"

// FundingSourceKind names the allowance bucket that paid for one action.
type FundingSourceKind string

const (
	FundingSourceKindBase     FundingSourceKind = "base"
	FundingSourceKindPurchase FundingSourceKind = "purchase"
)

var validFundingSourceKinds = []FundingSourceKind{
	FundingSourceKindBase,
	FundingSourceKindPurchase,
}

// String implements fmt.Stringer.
func (s FundingSourceKind) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s FundingSourceKind) IsValid() bool {
	for _, candidate := range validFundingSourceKinds {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseFundingSourceKind converts raw input into a FundingSourceKind.
func ParseFundingSourceKind(value string) (FundingSourceKind, error) {
	for _, candidate := range validFundingSourceKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid funding source %q", value)
}
