package billingwebhook

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/missions-backend/internal/billing"
	"github.com/angelmondragon/missions-backend/internal/subscriptions"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/stretchr/testify/require"
)

type stubApplier struct {
	calls int
	err   error
}

func (s *stubApplier) ApplyExternalEvent(ctx context.Context, event billing.Event) (subscriptions.ApplyResult, error) {
	s.calls++
	if s.err != nil {
		return subscriptions.ApplyResult{}, s.err
	}
	return subscriptions.ApplyResult{Outcome: "applied"}, nil
}

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	return m.data[key], nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func newService(t *testing.T, applier *stubApplier, store *memoryStore) *Service {
	t.Helper()
	g, err := NewIdempotencyGuard(store, time.Hour, GuardScope)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Subscriptions: applier,
		Guard:         g,
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func TestHandleEventSkipsRedelivery(t *testing.T) {
	applier := &stubApplier{}
	svc := newService(t, applier, &memoryStore{data: map[string]string{}})
	event := billing.Event{ID: "evt_1"}

	res, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "applied", res.Outcome)

	res, err = svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	require.True(t, res.Duplicate)
	require.Equal(t, 1, applier.calls)
}

func TestHandleEventTreatsDurableDuplicateAsSuccess(t *testing.T) {
	applier := &stubApplier{err: pkgerrors.New(pkgerrors.CodeDuplicateEvent, "already applied")}
	svc := newService(t, applier, &memoryStore{data: map[string]string{}})

	res, err := svc.HandleEvent(context.Background(), billing.Event{ID: "evt_1"})
	require.NoError(t, err)
	require.True(t, res.Received)
	require.True(t, res.Duplicate)
}

func TestHandleEventClearsGuardOnFailure(t *testing.T) {
	store := &memoryStore{data: map[string]string{}}
	applier := &stubApplier{err: errors.New("db down")}
	svc := newService(t, applier, store)

	_, err := svc.HandleEvent(context.Background(), billing.Event{ID: "evt_1"})
	require.Error(t, err)
	require.Empty(t, store.data)

	applier.err = nil
	res, err := svc.HandleEvent(context.Background(), billing.Event{ID: "evt_1"})
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.Equal(t, 2, applier.calls)
}
