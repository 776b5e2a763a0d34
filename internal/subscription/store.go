// internal/subscription/store.go
package subscription

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	apperrors "finpost-workers/internal/common/errors"
	"finpost-workers/internal/common/logger"
)

// Store persists subscriptions, payments and usage in Postgres.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

const subscriptionColumns = `id, user_id, plan_id, status, billing_cycle,
	current_period_start, current_period_end, trial_end, cancel_at_period_end,
	created_at, updated_at`

func (s *Store) Insert(ctx context.Context, sub *Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		sub.ID, sub.UserID, sub.PlanID, string(sub.Status), sub.BillingCycle,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.TrialEnd,
		sub.CancelAtPeriodEnd, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		// The partial unique index on (user_id) over non-canceled rows is
		// the real one-live-subscription guarantee; the manager's read
		// check only exists for a friendlier error message.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperrors.NewDuplicateSubscriptionError(sub.UserID)
		}
		return apperrors.NewQueryExecutionFailedError("insert subscription", err)
	}
	return nil
}

// GetActiveByUser returns the user's non-canceled subscription, or
// ErrSubscriptionNotFound when none exists.
func (s *Store) GetActiveByUser(ctx context.Context, userID string) (*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND status != $2
		ORDER BY created_at DESC
		LIMIT 1`

	return s.scanOne(s.db.QueryRowContext(ctx, query, userID, string(StatusCanceled)))
}

func (s *Store) GetByID(ctx context.Context, id string) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) scanOne(row *sql.Row) (*Subscription, error) {
	var sub Subscription
	var status string
	var trialEnd sql.NullTime

	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &status, &sub.BillingCycle,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &trialEnd,
		&sub.CancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("scan subscription", err)
	}

	sub.Status = Status(status)
	if trialEnd.Valid {
		t := trialEnd.Time
		sub.TrialEnd = &t
	}
	return &sub, nil
}

// UpdateStatus moves a subscription to a new status and optionally rolls the
// billing period forward.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, periodStart, periodEnd *time.Time, cancelAtPeriodEnd bool, now time.Time) error {
	query := `
		UPDATE subscriptions
		SET status = $2,
		    current_period_start = COALESCE($3, current_period_start),
		    current_period_end = COALESCE($4, current_period_end),
		    cancel_at_period_end = $5,
		    updated_at = $6
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, string(status), periodStart, periodEnd, cancelAtPeriodEnd, now)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("update subscription status", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.ErrSubscriptionNotFound
	}
	return nil
}

// ListDueForExpiry returns subscriptions flagged cancel_at_period_end whose
// period end has passed.
func (s *Store) ListDueForExpiry(ctx context.Context, now time.Time) ([]*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE cancel_at_period_end = TRUE
		  AND status != $1
		  AND current_period_end <= $2`

	rows, err := s.db.QueryContext(ctx, query, string(StatusCanceled), now)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list due for expiry", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var sub Subscription
		var status string
		var trialEnd sql.NullTime
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &status, &sub.BillingCycle,
			&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &trialEnd,
			&sub.CancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan due subscription", err)
		}
		sub.Status = Status(status)
		if trialEnd.Valid {
			t := trialEnd.Time
			sub.TrialEnd = &t
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// InsertPayment records a payment row. A unique index on
// (provider, external_payment_id) makes webhook replays collide; the
// violation is surfaced as errDuplicatePayment for the manager to swallow.
func (s *Store) InsertPayment(ctx context.Context, p *PaymentRecord) error {
	query := `
		INSERT INTO payment_records (id, subscription_id, provider,
			external_payment_id, amount, currency, status, refund_of, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.SubscriptionID, p.Provider, p.ExternalPaymentID,
		p.Amount.String(), p.Currency, p.Status, p.RefundOf, p.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errDuplicatePayment
		}
		return apperrors.NewQueryExecutionFailedError("insert payment record", err)
	}
	return nil
}

func (s *Store) GetPaymentByExternalID(ctx context.Context, provider, externalID string) (*PaymentRecord, error) {
	query := `
		SELECT id, subscription_id, provider, external_payment_id, amount,
		       currency, status, COALESCE(refund_of, ''), created_at
		FROM payment_records
		WHERE provider = $1 AND external_payment_id = $2`

	var p PaymentRecord
	var amount string
	err := s.db.QueryRowContext(ctx, query, provider, externalID).Scan(
		&p.ID, &p.SubscriptionID, &p.Provider, &p.ExternalPaymentID,
		&amount, &p.Currency, &p.Status, &p.RefundOf, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewPaymentNotFoundError(provider, externalID)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get payment record", err)
	}

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("parse payment amount", err)
	}
	return &p, nil
}

// IncrementUsage bumps the per-period counter for a usage kind.
func (s *Store) IncrementUsage(ctx context.Context, subscriptionID, kind string, periodStart time.Time, delta int64, now time.Time) error {
	query := `
		INSERT INTO usage_records (subscription_id, kind, period_start, count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subscription_id, kind, period_start)
		DO UPDATE SET count = usage_records.count + $4, updated_at = $5`

	_, err := s.db.ExecContext(ctx, query, subscriptionID, kind, periodStart, delta, now)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("increment usage", err)
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, subscriptionID, kind string, periodStart time.Time) (int64, error) {
	query := `
		SELECT count FROM usage_records
		WHERE subscription_id = $1 AND kind = $2 AND period_start = $3`

	var count int64
	err := s.db.QueryRowContext(ctx, query, subscriptionID, kind, periodStart).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.NewQueryExecutionFailedError("get usage", err)
	}
	return count, nil
}
