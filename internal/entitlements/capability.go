package entitlements

import (
	"context"

	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"gorm.io/gorm"
)

// DetectUsageTracking reports whether the usage ledger tables exist. It is
// called once at startup and the answer is handed to the resolver.
func DetectUsageTracking(ctx context.Context, conn *gorm.DB) bool {
	m := conn.WithContext(ctx).Migrator()
	return m.HasTable(&models.UsageRecord{}) && m.HasTable(&models.UsageHold{})
}
