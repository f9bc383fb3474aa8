package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dreamtales/dreamtales-api/internal/entitlement"
	"github.com/dreamtales/dreamtales-api/internal/models"
)

// ErrEmailTaken is returned by CreateUser when the email is already registered.
var ErrEmailTaken = errors.New("email already in use")

const userColumns = `id, name, email, password_hash, plan, stories_used, period_start,
        COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''),
        locale, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Plan,
		&user.StoriesUsed,
		&user.PeriodStart,
		&user.StripeCustomerID,
		&user.StripeSubscriptionID,
		&user.Locale,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `
        INSERT INTO users (id, name, email, password_hash, plan, stories_used, period_start, locale)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at
    `

	err := db.Pool.QueryRow(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Plan,
		user.StoriesUsed,
		user.PeriodStart,
		user.Locale,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}

	return err
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(db.Pool.QueryRow(ctx, query, strings.ToLower(email)))
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(db.Pool.QueryRow(ctx, query, id))
}

// SetUserPlan records a plan change coming from billing, along with the Stripe
// identifiers that back it. The usage counter is deliberately left alone:
// upgrading mid-period keeps whatever usage has accrued.
func (db *DB) SetUserPlan(ctx context.Context, userID string, plan models.Plan, customerID, subscriptionID string) error {
	query := `
        UPDATE users
        SET plan = $2,
            stripe_customer_id = NULLIF($3, ''),
            stripe_subscription_id = NULLIF($4, ''),
            updated_at = NOW()
        WHERE id = $1
    `

	tag, err := db.Pool.Exec(ctx, query, userID, plan, customerID, subscriptionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserPlanByStripeCustomer is the webhook path for events that only carry a
// Stripe customer id (e.g. subscription cancellation).
func (db *DB) SetUserPlanByStripeCustomer(ctx context.Context, customerID string, plan models.Plan) error {
	query := `UPDATE users SET plan = $2, updated_at = NOW() WHERE stripe_customer_id = $1`

	tag, err := db.Pool.Exec(ctx, query, customerID, plan)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReserveStoryUsage is the single serialization point for quota accounting.
// One conditional UPDATE applies the monthly rollover and the increment
// together, so concurrent requests can never double-spend the last slot or
// lose an increment across a period boundary:
//
//   - a stale period (period_start one month or more in the past) is treated
//     as used=0 before the check, and period_start advances to now;
//   - free accounts increment only while under freeLimit;
//   - premium accounts always pass; they increment only when countPremium
//     is set (usage analytics), and never reject.
//
// No row matching means either the account is missing or a free account is at
// its limit; only that failure path pays for the disambiguating read.
func (db *DB) ReserveStoryUsage(ctx context.Context, userID string, now time.Time, freeLimit int, countPremium bool) (entitlement.Usage, bool, error) {
	query := `
        UPDATE users
        SET stories_used = CASE
                WHEN plan = 'premium' AND NOT $4::boolean THEN
                    CASE WHEN period_start + interval '1 month' <= $2 THEN 0 ELSE stories_used END
                WHEN period_start + interval '1 month' <= $2 THEN 1
                ELSE stories_used + 1
            END,
            period_start = CASE
                WHEN period_start + interval '1 month' <= $2 THEN $2
                ELSE period_start
            END,
            updated_at = $2
        WHERE id = $1
          AND (plan = 'premium'
               OR period_start + interval '1 month' <= $2
               OR stories_used < $3)
        RETURNING plan, stories_used, period_start
    `

	var usage entitlement.Usage
	err := db.Pool.QueryRow(ctx, query, userID, now, freeLimit, countPremium).
		Scan(&usage.Plan, &usage.Used, &usage.PeriodStart)
	if errors.Is(err, pgx.ErrNoRows) {
		// Missing account or free account at its limit.
		usage, err = db.GetStoryUsage(ctx, userID)
		if err != nil {
			return entitlement.Usage{}, false, err
		}
		return usage, false, nil
	}
	if err != nil {
		return entitlement.Usage{}, false, err
	}

	return usage, true, nil
}

// ReleaseStoryUsage undoes one counted reservation, never going below zero.
func (db *DB) ReleaseStoryUsage(ctx context.Context, userID string) error {
	query := `
        UPDATE users
        SET stories_used = GREATEST(stories_used - 1, 0), updated_at = NOW()
        WHERE id = $1
    `

	_, err := db.Pool.Exec(ctx, query, userID)
	return err
}

// GetStoryUsage returns the raw counter state; callers apply the rollover
// rule before presenting it.
func (db *DB) GetStoryUsage(ctx context.Context, userID string) (entitlement.Usage, error) {
	query := `SELECT plan, stories_used, period_start FROM users WHERE id = $1`

	var usage entitlement.Usage
	err := db.Pool.QueryRow(ctx, query, userID).Scan(&usage.Plan, &usage.Used, &usage.PeriodStart)
	if errors.Is(err, pgx.ErrNoRows) {
		return entitlement.Usage{}, entitlement.ErrAccountNotFound
	}
	if err != nil {
		return entitlement.Usage{}, err
	}

	return usage, nil
}
