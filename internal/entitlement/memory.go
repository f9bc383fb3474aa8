package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/dreamtales/dreamtales-api/internal/models"
)

// MemoryStore is a mutex-serialized Store. It backs tests and local
// development; the mutex gives it the same atomicity the Postgres store gets
// from its single-statement conditional update.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*memoryAccount
}

type memoryAccount struct {
	plan        models.Plan
	used        int
	periodStart time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*memoryAccount)}
}

// Put seeds or overwrites an account's counter state.
func (s *MemoryStore) Put(accountID string, plan models.Plan, used int, periodStart time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accountID] = &memoryAccount{plan: plan, used: used, periodStart: periodStart}
}

func (s *MemoryStore) ReserveStoryUsage(ctx context.Context, accountID string, now time.Time, freeLimit int, countPremium bool) (Usage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return Usage{}, false, ErrAccountNotFound
	}

	used, periodStart := effectiveState(acct.used, acct.periodStart, now)

	if acct.plan == models.PlanPremium {
		if countPremium {
			used++
		}
		acct.used, acct.periodStart = used, periodStart
		return Usage{Plan: acct.plan, Used: used, PeriodStart: periodStart}, true, nil
	}

	if used >= freeLimit {
		return Usage{Plan: acct.plan, Used: used, PeriodStart: periodStart}, false, nil
	}

	used++
	acct.used, acct.periodStart = used, periodStart
	return Usage{Plan: acct.plan, Used: used, PeriodStart: periodStart}, true, nil
}

func (s *MemoryStore) ReleaseStoryUsage(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.used > 0 {
		acct.used--
	}
	return nil
}

func (s *MemoryStore) GetStoryUsage(ctx context.Context, accountID string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return Usage{}, ErrAccountNotFound
	}
	return Usage{Plan: acct.plan, Used: acct.used, PeriodStart: acct.periodStart}, nil
}
