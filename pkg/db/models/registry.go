package models

// All lists every persisted model, in dependency order, for sqlite
// auto-migration in local runs and tests.
func All() []any {
	return []any{
		&User{},
		&Subscription{},
		&UsagePurchase{},
		&UsageRecord{},
		&UsageHold{},
		&CreditEntry{},
		&BillingEvent{},
		&EntitlementAccount{},
		&Mission{},
		&MissionSwipe{},
		&MissionLike{},
	}
}
