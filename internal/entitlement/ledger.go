// Package entitlement owns the per-account monthly generation quota: who may
// generate a story right now, and the accounting for each one consumed.
package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/dreamtales/dreamtales-api/internal/models"
)

var (
	// ErrQuotaExceeded is a policy rejection, not a fault: the free-plan
	// monthly allowance is spent. Callers surface it as a distinct outcome
	// so users can be routed to an upgrade path.
	ErrQuotaExceeded = errors.New("monthly story quota exceeded")

	// ErrAccountNotFound means the account id has no backing row.
	ErrAccountNotFound = errors.New("account not found")
)

// Usage is counter state as reported by a store.
type Usage struct {
	Plan        models.Plan
	Used        int
	PeriodStart time.Time
}

// Store is the atomic primitive the ledger runs on. Implementations must make
// ReserveStoryUsage a single atomic read-modify-write: the monthly rollover,
// the limit check and the increment happen together, never as separate steps.
type Store interface {
	// ReserveStoryUsage attempts to consume one generation. It returns the
	// post-reservation usage and true on success, the current usage and
	// false when a free account is at its limit, and ErrAccountNotFound
	// when the account does not exist.
	ReserveStoryUsage(ctx context.Context, accountID string, now time.Time, freeLimit int, countPremium bool) (Usage, bool, error)

	// ReleaseStoryUsage decrements the counter by one, never below zero.
	ReleaseStoryUsage(ctx context.Context, accountID string) error

	// GetStoryUsage returns raw counter state without mutating it.
	GetStoryUsage(ctx context.Context, accountID string) (Usage, error)
}

// Reservation is proof that one generation was authorized. It is the token
// passed back to Release if the generation it paid for never completes.
type Reservation struct {
	AccountID   string
	Plan        models.Plan
	Used        int
	PeriodStart time.Time

	// Counted records whether the reservation actually incremented the
	// counter. Premium reservations are uncounted when premium usage
	// tracking is disabled, and their release is a no-op.
	Counted bool
}

// Ledger answers "may this account generate now" and records consumption.
// All mutation goes through the store's atomic reserve, so two concurrent
// requests for the same account can never both take the last free slot.
type Ledger struct {
	store        Store
	freeLimit    int
	countPremium bool
	now          func() time.Time
}

func NewLedger(store Store, freeLimit int, countPremium bool) *Ledger {
	return &Ledger{
		store:        store,
		freeLimit:    freeLimit,
		countPremium: countPremium,
		now:          time.Now,
	}
}

// CheckAndReserve authorizes one generation. Premium accounts always pass
// (tracked when premium counting is on, never rejected); free accounts pass
// while under the monthly limit. A stale period is reset as part of the same
// atomic step, so requests racing across the boundary settle to exactly one
// reset with no lost increments.
func (l *Ledger) CheckAndReserve(ctx context.Context, accountID string) (*Reservation, error) {
	usage, reserved, err := l.store.ReserveStoryUsage(ctx, accountID, l.now(), l.freeLimit, l.countPremium)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, ErrQuotaExceeded
	}

	return &Reservation{
		AccountID:   accountID,
		Plan:        usage.Plan,
		Used:        usage.Used,
		PeriodStart: usage.PeriodStart,
		Counted:     usage.Plan != models.PlanPremium || l.countPremium,
	}, nil
}

// Release is the compensating half of CheckAndReserve: it refunds a counted
// reservation whose generation failed before being durably recorded.
func (l *Ledger) Release(ctx context.Context, res *Reservation) error {
	if res == nil || !res.Counted {
		return nil
	}
	return l.store.ReleaseStoryUsage(ctx, res.AccountID)
}

// Report is the effective quota state presented to users.
type Report struct {
	Plan      models.Plan `json:"plan"`
	Used      int         `json:"used"`
	Limit     int         `json:"limit"`     // -1 means unlimited
	Remaining int         `json:"remaining"` // -1 means unlimited
	ResetsAt  time.Time   `json:"resets_at"`
}

// Usage returns the effective (post-rollover) quota state without mutating
// the counter.
func (l *Ledger) Usage(ctx context.Context, accountID string) (*Report, error) {
	usage, err := l.store.GetStoryUsage(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	used, periodStart := effectiveState(usage.Used, usage.PeriodStart, now)

	report := &Report{
		Plan:     usage.Plan,
		Used:     used,
		Limit:    l.freeLimit,
		ResetsAt: periodStart.AddDate(0, 1, 0),
	}
	if usage.Plan == models.PlanPremium {
		report.Limit = -1
		report.Remaining = -1
		return report, nil
	}
	report.Remaining = max(l.freeLimit-used, 0)
	return report, nil
}

// effectiveState applies the monthly rollover rule as a pure function: a
// counter whose period started one month or more ago reads as zero with a
// fresh period. Stores apply the identical rule inside their atomic reserve.
func effectiveState(used int, periodStart, now time.Time) (int, time.Time) {
	if !periodStart.AddDate(0, 1, 0).After(now) {
		return 0, now
	}
	return used, periodStart
}
