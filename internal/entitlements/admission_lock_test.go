package entitlements

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/missions-backend/internal/billing"
	"github.com/angelmondragon/missions-backend/internal/usage/usagetest"
	"github.com/angelmondragon/missions-backend/pkg/config"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// The sqlite fixture pins one connection, which serializes transactions on
// its own. This runs admissions against a store where they genuinely overlap.
func TestAdmissionsSerializeOnPrincipalLock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := usagetest.NewStore()
	store.Pause = 20 * time.Millisecond

	p := SessionPrincipal("sess-interleave")
	for i := 0; i < 2; i++ {
		store.Seed(models.UsageRecord{
			ID:             uuid.New(),
			PrincipalKey:   p.Key(),
			SessionID:      p.sessionPtr(),
			IdempotencyKey: uuid.NewString(),
			CreatedAt:      now.Add(-time.Hour),
		})
	}

	r, err := NewResolver(ResolverParams{
		Config:            config.DefaultEntitlements(),
		UsageRepo:         store,
		BillingRepo:       billing.NewRepository(nil),
		TransactionRunner: usagetest.Runner{Store: store},
		UsageTracking:     true,
		Logger:            logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Clock:             func() time.Time { return now },
	})
	require.NoError(t, err)

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		admitted  int
		exhausted int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := r.CheckAdmission(ctx, p, AdmissionRequest{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case pkgerrors.IsCode(err, pkgerrors.CodeQuotaExhausted):
				exhausted++
			default:
				t.Errorf("unexpected admission error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, admitted)
	require.Equal(t, workers-1, exhausted)
	require.Equal(t, 1, store.Holds(p.Key()))
}
