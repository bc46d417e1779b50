package models

import "time"

// EntitlementAccount is the per-principal row whose update serializes
// admissions and credit spends for that principal.
type EntitlementAccount struct {
	PrincipalKey string    `gorm:"column:principal_key;primaryKey"`
	Version      int64     `gorm:"column:version;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}
