// Package usagetest provides an in-memory usage store whose principal lock is
// held until the surrounding transaction ends, for tests that need real
// interleaving between concurrent transactions.
package usagetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/missions-backend/internal/usage"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Runner hands every transaction a distinct token and releases the locks
// taken under that token once fn returns.
type Runner struct {
	Store *Store
}

func (r Runner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	token := &gorm.DB{}
	defer r.Store.release(token)
	return fn(token)
}

// Store implements the parts of usage.Repository that admission and credit
// spending touch. Other methods panic through the nil embedded interface.
// Pause is slept after every read so unlocked check-then-write races surface.
type Store struct {
	usage.Repository

	Pause time.Duration

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	held    map[*gorm.DB][]*sync.Mutex
	records []models.UsageRecord
	holds   map[uuid.UUID]models.UsageHold
}

func NewStore() *Store {
	return &Store{
		locks: map[string]*sync.Mutex{},
		held:  map[*gorm.DB][]*sync.Mutex{},
		holds: map[uuid.UUID]models.UsageHold{},
	}
}

type view struct {
	*Store
	token *gorm.DB
}

func (s *Store) WithTx(tx *gorm.DB) usage.Repository {
	return &view{Store: s, token: tx}
}

func (v *view) WithTx(tx *gorm.DB) usage.Repository {
	return v.Store.WithTx(tx)
}

func (v *view) LockPrincipal(ctx context.Context, principalKey string, now time.Time) error {
	if v.token == nil {
		return errors.New("lock requires a transaction")
	}
	v.mu.Lock()
	m, ok := v.locks[principalKey]
	if !ok {
		m = &sync.Mutex{}
		v.locks[principalKey] = m
	}
	v.mu.Unlock()

	m.Lock()
	v.mu.Lock()
	v.held[v.token] = append(v.held[v.token], m)
	v.mu.Unlock()
	return nil
}

func (s *Store) release(token *gorm.DB) {
	s.mu.Lock()
	held := s.held[token]
	delete(s.held, token)
	s.mu.Unlock()
	for _, m := range held {
		m.Unlock()
	}
}

func (s *Store) LockPrincipal(ctx context.Context, principalKey string, now time.Time) error {
	return errors.New("lock requires a transaction")
}

func (s *Store) CountBaseUsage(ctx context.Context, principalKey string, windowStart, now time.Time) (int64, error) {
	s.mu.Lock()
	var n int64
	for _, r := range s.records {
		if r.PrincipalKey == principalKey && r.PurchaseID == nil && !r.CreatedAt.Before(windowStart) {
			n++
		}
	}
	for _, h := range s.holds {
		if h.PrincipalKey == principalKey && h.PurchaseID == nil && h.ExpiresAt.After(now) {
			n++
		}
	}
	s.mu.Unlock()
	time.Sleep(s.Pause)
	return n, nil
}

func (s *Store) CreateHold(ctx context.Context, hold *models.UsageHold) error {
	if hold.ID == uuid.Nil {
		hold.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds[hold.ID] = *hold
	return nil
}

// Seed appends records directly, outside any transaction.
func (s *Store) Seed(records ...models.UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// Holds reports how many holds exist for principalKey.
func (s *Store) Holds(principalKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.holds {
		if h.PrincipalKey == principalKey {
			n++
		}
	}
	return n
}
