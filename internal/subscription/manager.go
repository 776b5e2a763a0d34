// internal/subscription/manager.go
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "finpost-workers/internal/common/errors"
	"finpost-workers/internal/common/logger"
	"finpost-workers/internal/common/metrics"
	"finpost-workers/pkg/plans"
)

var errDuplicatePayment = errors.New("payment record already exists")

// Manager owns the subscription lifecycle: trial -> active -> past_due ->
// canceled, with suspended and paused as resumable side states. Payment
// webhooks drive the transitions; access checks are reads.
type Manager struct {
	store     *Store
	catalog   *plans.Catalog
	trialDays int
	logger    logger.Logger
	now       func() time.Time
}

func NewManager(store *Store, catalog *plans.Catalog, trialDays int, log logger.Logger) *Manager {
	return &Manager{
		store:     store,
		catalog:   catalog,
		trialDays: trialDays,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Test use only.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CreateSubscription starts a new subscription for the user. Users carry at
// most one live subscription; a second attempt fails with
// ErrDuplicateSubscription rather than silently replacing the first.
func (m *Manager) CreateSubscription(ctx context.Context, userID, planID, billingCycle string) (*Subscription, error) {
	plan, ok := m.catalog.Plan(planID)
	if !ok {
		return nil, apperrors.NewInvalidPlanError(planID)
	}
	if !plan.IsActive {
		return nil, apperrors.NewInvalidPlanError(planID + ": plan is retired")
	}
	switch billingCycle {
	case "monthly", "quarterly", "yearly":
	default:
		return nil, apperrors.NewInvalidPlanError(planID + ": billing cycle " + billingCycle)
	}

	existing, err := m.store.GetActiveByUser(ctx, userID)
	if err != nil && !errors.Is(err, apperrors.ErrSubscriptionNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.NewDuplicateSubscriptionError(userID)
	}

	now := m.now()
	sub := &Subscription{
		ID:                 uuid.NewString(),
		UserID:             userID,
		PlanID:             plan.ID,
		Status:             StatusActive,
		BillingCycle:       billingCycle,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   periodEnd(now, billingCycle),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if m.trialDays > 0 {
		trialEnd := now.AddDate(0, 0, m.trialDays)
		sub.Status = StatusTrial
		sub.TrialEnd = &trialEnd
		// The first paid period starts where the trial ends.
		sub.CurrentPeriodEnd = periodEnd(trialEnd, billingCycle)
	}

	if err := m.store.Insert(ctx, sub); err != nil {
		return nil, err
	}

	metrics.SubscriptionTransitions.WithLabelValues(string(sub.Status)).Inc()
	m.logger.Info("subscription created", map[string]interface{}{
		"subscription_id": sub.ID,
		"user_id":         userID,
		"plan_id":         plan.ID,
		"status":          string(sub.Status),
	})
	return sub, nil
}

func periodEnd(start time.Time, billingCycle string) time.Time {
	switch billingCycle {
	case "yearly":
		return start.AddDate(1, 0, 0)
	case "quarterly":
		return start.AddDate(0, 3, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// CheckAccess reports whether the user's subscription includes a feature.
// Expired trials are finalized lazily on read.
func (m *Manager) CheckAccess(ctx context.Context, userID, feature string) (bool, error) {
	sub, err := m.store.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrSubscriptionNotFound) {
			return false, nil
		}
		return false, err
	}

	sub, err = m.finalizeIfExpired(ctx, sub)
	if err != nil {
		return false, err
	}
	if !sub.Status.Active() {
		return false, nil
	}

	plan, ok := m.catalog.Plan(sub.PlanID)
	if !ok {
		return false, apperrors.NewInvalidPlanError(sub.PlanID)
	}
	for _, f := range plan.Features {
		if f != feature {
			continue
		}
		// A negative limit means unmetered. A feature with a limit is only
		// accessible while current-period usage stays under it.
		if limit, metered := plan.Limits[feature]; metered && limit >= 0 {
			used, err := m.store.GetUsage(ctx, sub.ID, feature, sub.CurrentPeriodStart)
			if err != nil {
				return false, err
			}
			if used >= limit {
				return false, nil
			}
		}
		return true, nil
	}
	return false, nil
}

// RecordUsage counts n units of metered usage against the current billing
// period and enforces the plan limit.
func (m *Manager) RecordUsage(ctx context.Context, userID, kind string, n int64) error {
	if n <= 0 {
		return fmt.Errorf("usage count must be positive, got %d", n)
	}
	sub, err := m.store.GetActiveByUser(ctx, userID)
	if err != nil {
		return err
	}
	sub, err = m.finalizeIfExpired(ctx, sub)
	if err != nil {
		return err
	}
	if !sub.Status.Active() {
		return apperrors.ErrSubscriptionNotFound
	}

	plan, ok := m.catalog.Plan(sub.PlanID)
	if !ok {
		return apperrors.NewInvalidPlanError(sub.PlanID)
	}

	used, err := m.store.GetUsage(ctx, sub.ID, kind, sub.CurrentPeriodStart)
	if err != nil {
		return err
	}
	if limit := plan.LimitFor(kind); limit >= 0 && used+n > limit {
		return apperrors.NewUsageLimitExceededError(kind, used, limit)
	}

	return m.store.IncrementUsage(ctx, sub.ID, kind, sub.CurrentPeriodStart, n, m.now())
}

// CancelSubscription cancels either immediately or at period end. The
// at-period-end path keeps access flowing until the paid window closes.
func (m *Manager) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool, reason string) error {
	sub, err := m.store.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == StatusCanceled {
		return nil
	}

	now := m.now()
	if atPeriodEnd {
		if err := m.store.UpdateStatus(ctx, sub.ID, sub.Status, nil, nil, true, now); err != nil {
			return err
		}
		m.logger.Info("subscription flagged for period-end cancellation", map[string]interface{}{
			"subscription_id": sub.ID,
			"period_end":      sub.CurrentPeriodEnd,
			"reason":          reason,
		})
		return nil
	}

	if err := m.store.UpdateStatus(ctx, sub.ID, StatusCanceled, nil, nil, false, now); err != nil {
		return err
	}
	metrics.SubscriptionTransitions.WithLabelValues(string(StatusCanceled)).Inc()
	m.logger.Info("subscription canceled", map[string]interface{}{
		"subscription_id": sub.ID,
		"reason":          reason,
	})
	return nil
}

// Suspend puts a subscription on an operator hold. Access stops immediately;
// billing state is preserved so Resume can restore it.
func (m *Manager) Suspend(ctx context.Context, subscriptionID, reason string) error {
	return m.hold(ctx, subscriptionID, StatusSuspended, reason)
}

// Pause is the user-requested counterpart of Suspend.
func (m *Manager) Pause(ctx context.Context, subscriptionID, reason string) error {
	return m.hold(ctx, subscriptionID, StatusPaused, reason)
}

func (m *Manager) hold(ctx context.Context, subscriptionID string, status Status, reason string) error {
	sub, err := m.store.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == StatusCanceled {
		return apperrors.NewSubscriptionNotFoundError(subscriptionID)
	}
	if sub.Status == status {
		return nil
	}
	if err := m.store.UpdateStatus(ctx, sub.ID, status, nil, nil, sub.CancelAtPeriodEnd, m.now()); err != nil {
		return err
	}
	metrics.SubscriptionTransitions.WithLabelValues(string(status)).Inc()
	m.logger.Info("subscription put on hold", map[string]interface{}{
		"subscription_id": sub.ID,
		"status":          string(status),
		"reason":          reason,
	})
	return nil
}

// Resume lifts a suspension or pause. Only held subscriptions resume; every
// other state is left alone.
func (m *Manager) Resume(ctx context.Context, subscriptionID string) error {
	sub, err := m.store.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != StatusSuspended && sub.Status != StatusPaused {
		return fmt.Errorf("subscription %s is not on hold (status %s)", sub.ID, sub.Status)
	}
	if err := m.store.UpdateStatus(ctx, sub.ID, StatusActive, nil, nil, sub.CancelAtPeriodEnd, m.now()); err != nil {
		return err
	}
	metrics.SubscriptionTransitions.WithLabelValues(string(StatusActive)).Inc()
	m.logger.Info("subscription resumed", map[string]interface{}{
		"subscription_id": sub.ID,
	})
	return nil
}

// finalizeIfExpired moves a subscription whose paid window has closed to
// canceled. Covers expired trials and cancel_at_period_end flags without a
// separate cron.
func (m *Manager) finalizeIfExpired(ctx context.Context, sub *Subscription) (*Subscription, error) {
	now := m.now()
	expired := (sub.Status == StatusTrial && sub.TrialEnd != nil && now.After(*sub.TrialEnd)) ||
		(sub.CancelAtPeriodEnd && now.After(sub.CurrentPeriodEnd))
	if !expired || sub.Status == StatusCanceled {
		return sub, nil
	}

	if err := m.store.UpdateStatus(ctx, sub.ID, StatusCanceled, nil, nil, false, now); err != nil {
		return nil, err
	}
	metrics.SubscriptionTransitions.WithLabelValues(string(StatusCanceled)).Inc()
	m.logger.Info("subscription expired", map[string]interface{}{
		"subscription_id": sub.ID,
		"prior_status":    string(sub.Status),
	})
	sub.Status = StatusCanceled
	return sub, nil
}

// FinalizeExpired sweeps subscriptions flagged cancel_at_period_end whose
// window has closed. Called from the worker tick as a safety net for users
// who never trigger the lazy path.
func (m *Manager) FinalizeExpired(ctx context.Context) (int, error) {
	due, err := m.store.ListDueForExpiry(ctx, m.now())
	if err != nil {
		return 0, err
	}
	var finalized int
	for _, sub := range due {
		if _, err := m.finalizeIfExpired(ctx, sub); err != nil {
			m.logger.WithError(err).Error("finalize expired subscription", map[string]interface{}{
				"subscription_id": sub.ID,
			})
			continue
		}
		finalized++
	}
	return finalized, nil
}

// OnPaymentSucceeded records the payment and advances the billing period.
// Replayed webhooks hit the unique external id and are no-ops.
func (m *Manager) OnPaymentSucceeded(ctx context.Context, subscriptionID, provider, externalPaymentID, currency string, amount decimal.Decimal) error {
	sub, err := m.store.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}

	now := m.now()
	record := &PaymentRecord{
		ID:                uuid.NewString(),
		SubscriptionID:    sub.ID,
		Provider:          provider,
		ExternalPaymentID: externalPaymentID,
		Amount:            amount,
		Currency:          currency,
		Status:            "succeeded",
		CreatedAt:         now,
	}
	if err := m.store.InsertPayment(ctx, record); err != nil {
		if errors.Is(err, errDuplicatePayment) {
			m.logger.Info("duplicate payment webhook ignored", map[string]interface{}{
				"provider":            provider,
				"external_payment_id": externalPaymentID,
			})
			return nil
		}
		return err
	}

	// Canceled is terminal. A late webhook still lands in the ledger above,
	// but it must not quietly resurrect the subscription.
	if sub.Status == StatusCanceled {
		m.logger.Warn("payment received for canceled subscription, recorded without transition", map[string]interface{}{
			"subscription_id":     sub.ID,
			"provider":            provider,
			"external_payment_id": externalPaymentID,
		})
		return nil
	}

	start := sub.CurrentPeriodEnd
	if now.After(start) {
		start = now
	}
	end := periodEnd(start, sub.BillingCycle)
	if err := m.store.UpdateStatus(ctx, sub.ID, StatusActive, &start, &end, sub.CancelAtPeriodEnd, now); err != nil {
		return err
	}
	metrics.SubscriptionTransitions.WithLabelValues(string(StatusActive)).Inc()
	m.logger.Info("payment recorded", map[string]interface{}{
		"subscription_id":     sub.ID,
		"provider":            provider,
		"external_payment_id": externalPaymentID,
		"amount":              amount.String(),
	})
	return nil
}

// OnPaymentFailed marks the subscription past_due. Access continues through
// the grace window; repeated failures end in cancellation upstream.
func (m *Manager) OnPaymentFailed(ctx context.Context, subscriptionID, provider, externalPaymentID string) error {
	sub, err := m.store.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}

	now := m.now()
	record := &PaymentRecord{
		ID:                uuid.NewString(),
		SubscriptionID:    sub.ID,
		Provider:          provider,
		ExternalPaymentID: externalPaymentID,
		Status:            "failed",
		Currency:          "",
		CreatedAt:         now,
	}
	if err := m.store.InsertPayment(ctx, record); err != nil && !errors.Is(err, errDuplicatePayment) {
		return err
	}

	if sub.Status == StatusCanceled {
		return nil
	}
	if err := m.store.UpdateStatus(ctx, sub.ID, StatusPastDue, nil, nil, sub.CancelAtPeriodEnd, now); err != nil {
		return err
	}
	metrics.SubscriptionTransitions.WithLabelValues(string(StatusPastDue)).Inc()
	m.logger.Warn("payment failed, subscription past due", map[string]interface{}{
		"subscription_id": sub.ID,
		"provider":        provider,
	})
	return nil
}

// Refund writes a negative-amount record linked to the original payment.
// The original row stays untouched so the ledger sums correctly.
func (m *Manager) Refund(ctx context.Context, provider, externalPaymentID string) error {
	original, err := m.store.GetPaymentByExternalID(ctx, provider, externalPaymentID)
	if err != nil {
		// A refund for a payment we never saw cannot be retried into
		// existence. Acknowledge it so the provider stops redelivering.
		if errors.Is(err, apperrors.ErrPaymentNotFound) {
			m.logger.Warn("refund webhook for unknown payment acknowledged", map[string]interface{}{
				"provider":            provider,
				"external_payment_id": externalPaymentID,
			})
			return nil
		}
		return err
	}

	record := &PaymentRecord{
		ID:                uuid.NewString(),
		SubscriptionID:    original.SubscriptionID,
		Provider:          provider,
		ExternalPaymentID: externalPaymentID + ":refund",
		Amount:            original.Amount.Neg(),
		Currency:          original.Currency,
		Status:            "refunded",
		RefundOf:          original.ID,
		CreatedAt:         m.now(),
	}
	if err := m.store.InsertPayment(ctx, record); err != nil {
		if errors.Is(err, errDuplicatePayment) {
			return nil
		}
		return err
	}
	m.logger.Info("refund recorded", map[string]interface{}{
		"subscription_id":     original.SubscriptionID,
		"external_payment_id": externalPaymentID,
		"amount":              record.Amount.String(),
	})
	return nil
}
