package enums

import "fmt"

// BillingEventType enumerates the asynchronous events delivered by the billing provider.
type BillingEventType string

const (
	BillingEventTypeCheckoutCompleted    BillingEventType = "checkout-completed"
	BillingEventTypeSubscriptionUpdated  BillingEventType = "subscription-updated"
	BillingEventTypeSubscriptionCanceled BillingEventType = "subscription-canceled"
)

var validBillingEventTypes = []BillingEventType{
	BillingEventTypeCheckoutCompleted,
	BillingEventTypeSubscriptionUpdated,
	BillingEventTypeSubscriptionCanceled,
}

// String implements fmt.Stringer.
func (s BillingEventType) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s BillingEventType) IsValid() bool {
	for _, candidate := range validBillingEventTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBillingEventType converts raw input into a BillingEventType.
func ParseBillingEventType(value string) (BillingEventType, error) {
	for _, candidate := range validBillingEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing event type %q", value)
}
