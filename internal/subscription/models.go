// internal/subscription/models.go
package subscription

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusSuspended Status = "suspended" // operator hold, e.g. abuse review
	StatusPaused    Status = "paused"    // user-requested break, resumable
	StatusCanceled  Status = "canceled"
)

// Active reports whether the status grants feature access. past_due keeps
// access through the grace window; the dunning job downgrades it. Suspended
// and paused subscriptions stay live rows but grant nothing until resumed.
func (s Status) Active() bool {
	return s == StatusTrial || s == StatusActive || s == StatusPastDue
}

// Subscription ties a user to a plan over a billing period. Plan definitions
// live in pkg/plans; subscriptions reference them by id.
type Subscription struct {
	ID                 string
	UserID             string
	PlanID             string
	Status             Status
	BillingCycle       string // monthly, quarterly or yearly
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PaymentRecord is one money movement against a subscription. Refunds are
// separate rows with negative amounts linked via RefundOf; originals are
// never mutated.
type PaymentRecord struct {
	ID                string
	SubscriptionID    string
	Provider          string
	ExternalPaymentID string
	Amount            decimal.Decimal
	Currency          string
	Status            string // succeeded, failed, refunded
	RefundOf          string // id of the original payment, set on refund rows
	CreatedAt         time.Time
}

// UsageRecord accumulates metered usage per kind within a billing period.
type UsageRecord struct {
	SubscriptionID string
	Kind           string
	PeriodStart    time.Time
	Count          int64
	UpdatedAt      time.Time
}
