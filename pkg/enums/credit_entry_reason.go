package enums

import "fmt"

// CreditEntryReason explains why a credit entry was written.
type CreditEntryReason string

const (
	CreditEntryReasonEngagement CreditEntryReason = "engagement"
	CreditEntryReasonAdjustment CreditEntryReason = "adjustment"
	CreditEntryReasonExchange   CreditEntryReason = "exchange"
	CreditEntryReasonSignup     CreditEntryReason = "signup"
)

var validCreditEntryReasons = []CreditEntryReason{
	CreditEntryReasonEngagement,
	CreditEntryReasonAdjustment,
	CreditEntryReasonExchange,
	CreditEntryReasonSignup,
}

// String implements fmt.Stringer.
func (s CreditEntryReason) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s CreditEntryReason) IsValid() bool {
	for _, candidate := range validCreditEntryReasons {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCreditEntryReason converts raw input into a CreditEntryReason.
func ParseCreditEntryReason(value string) (CreditEntryReason, error) {
	for _, candidate := range validCreditEntryReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit entry reason %q", value)
}
