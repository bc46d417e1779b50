package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/missions-backend/pkg/migrate"
)

func TestUsageLedgerMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_usage_ledger.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no usage ledger migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS entitlement_accounts",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_records_idempotency_key ON usage_records (idempotency_key)",
		"FOREIGN KEY (purchase_id) REFERENCES usage_purchases(id) ON DELETE RESTRICT",
		"CHECK (amount > 0)",
		"CHECK (amount <> 0)",
		"DROP TABLE IF EXISTS usage_records",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSubscriptionMigrationKeysByCustomerRef(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_accounts_and_subscriptions.sql"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("subscription migration not found: %v", err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)
	for _, sub := range []string{
		"ON subscriptions (billing_customer_ref)",
		"event_id TEXT PRIMARY KEY",
		"CHECK (status IN ('pending', 'active', 'past_due', 'canceled'))",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestGooseDialect(t *testing.T) {
	if got := migrate.GooseDialect("sqlite"); got != "sqlite3" {
		t.Fatalf("expected sqlite3, got %s", got)
	}
	if got := migrate.GooseDialect("postgres"); got != "postgres" {
		t.Fatalf("expected postgres, got %s", got)
	}
}
