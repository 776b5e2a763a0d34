// Package errors provides standardized error handling for the publishing and
// billing subsystems.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Subscription / billing errors
	ErrCodeDuplicateSubscription ErrorCode = "DUPLICATE_SUBSCRIPTION"
	ErrCodeInvalidPlan           ErrorCode = "INVALID_PLAN"
	ErrCodeSubscriptionNotFound  ErrorCode = "SUBSCRIPTION_NOT_FOUND"
	ErrCodeUsageLimitExceeded    ErrorCode = "USAGE_LIMIT_EXCEEDED"
	ErrCodePaymentNotFound       ErrorCode = "PAYMENT_NOT_FOUND"

	// Payment gateway errors
	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	ErrCodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
	ErrCodeUnknownProvider  ErrorCode = "UNKNOWN_PROVIDER"

	// Queue errors
	ErrCodeQueueInsertFailed ErrorCode = "QUEUE_INSERT_FAILED"
	ErrCodeItemNotFound      ErrorCode = "ITEM_NOT_FOUND"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// Delivery errors
	ErrCodeChannelSendFailed  ErrorCode = "CHANNEL_SEND_FAILED"
	ErrCodeUnknownPlatform    ErrorCode = "UNKNOWN_PLATFORM"
	ErrCodeContentUnavailable ErrorCode = "CONTENT_UNAVAILABLE"

	// Infrastructure errors
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
)

// Sentinel errors for errors.Is checks at call sites. The structured
// constructors below wrap these so callers can branch on identity while logs
// keep the full detail.
var (
	ErrDuplicateSubscription = errors.New("duplicate active subscription")
	ErrInvalidPlan           = errors.New("invalid or inactive plan")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrPaymentNotFound       = errors.New("payment record not found")
	ErrInvalidSignature      = errors.New("webhook signature verification failed")
	ErrMalformedPayload      = errors.New("malformed webhook payload")
	ErrUnknownProvider       = errors.New("unknown payment provider")
	ErrUnknownPlatform       = errors.New("unknown publishing platform")
	ErrItemNotFound          = errors.New("queue item not found")
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	wrapped error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.wrapped
}

// ==========================
// 2. Error Constructors
// ==========================

// NewDuplicateSubscriptionError reports that a user already holds a
// non-terminal subscription. Not retryable: it is a caller logic error.
func NewDuplicateSubscriptionError(userID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateSubscription,
		Message:   "User already has an active subscription",
		Details:   fmt.Sprintf("userId: %s", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrDuplicateSubscription,
	}
}

// NewInvalidPlanError reports a reference to a missing or inactive plan.
func NewInvalidPlanError(planID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidPlan,
		Message:   "Subscription plan not found or inactive",
		Details:   fmt.Sprintf("planId: %s", planID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrInvalidPlan,
	}
}

// NewSubscriptionNotFoundError reports a lookup miss.
func NewSubscriptionNotFoundError(id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSubscriptionNotFound,
		Message:   "Subscription not found",
		Details:   fmt.Sprintf("subscriptionId: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrSubscriptionNotFound,
	}
}

// NewPaymentNotFoundError reports a lookup miss on a payment record. Not
// retryable: the referenced payment never existed here, so retries cannot
// succeed.
func NewPaymentNotFoundError(provider, externalPaymentID string) *StandardError {
	return &StandardError{
		Code:      ErrCodePaymentNotFound,
		Message:   "Payment record not found",
		Details:   fmt.Sprintf("provider: %s, externalPaymentId: %s", provider, externalPaymentID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrPaymentNotFound,
	}
}

// NewUsageLimitExceededError reports that metered usage hit the plan cap
// for the current billing period.
func NewUsageLimitExceededError(kind string, used, limit int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeUsageLimitExceeded,
		Message:   "Usage limit exceeded for current billing period",
		Details:   fmt.Sprintf("kind: %s, used: %d, limit: %d", kind, used, limit),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidSignatureError reports a webhook whose signature did not verify.
// Always fail closed: the payload must never be processed.
func NewInvalidSignatureError(provider string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidSignature,
		Message:   "Webhook signature verification failed",
		Details:   fmt.Sprintf("provider: %s", provider),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrInvalidSignature,
	}
}

// NewMalformedPayloadError reports a webhook body that failed structural
// validation after its signature verified.
func NewMalformedPayloadError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedPayload,
		Message:   "Webhook payload failed validation",
		Details:   fmt.Sprintf("provider: %s, error: %s", provider, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrMalformedPayload,
	}
}

// NewUnknownProviderError reports an unrecognized payment provider tag.
func NewUnknownProviderError(provider string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownProvider,
		Message:   "Unrecognized payment provider",
		Details:   fmt.Sprintf("provider: %s", provider),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrUnknownProvider,
	}
}

// NewUnknownPlatformError reports a queue item targeting a platform with no
// registered channel adapter.
func NewUnknownPlatformError(platform string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownPlatform,
		Message:   "No channel adapter registered for platform",
		Details:   fmt.Sprintf("platform: %s", platform),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrUnknownPlatform,
	}
}

// NewChannelSendFailedError reports a transient delivery failure. Retryable:
// the item stays eligible for a future scheduling pass.
func NewChannelSendFailedError(platform string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelSendFailed,
		Message:   "Channel delivery failed",
		Details:   fmt.Sprintf("platform: %s, error: %s", platform, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError reports an attempted illegal queue status change.
func NewInvalidTransitionError(itemID, from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Illegal queue item status transition",
		Details:   fmt.Sprintf("itemId: %s, from: %s, to: %s", itemID, from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
