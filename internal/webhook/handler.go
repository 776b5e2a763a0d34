// Package webhook exposes the billing webhook endpoint. It is the only
// inbound HTTP surface besides health and metrics; everything else in the
// system is outbound.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	apperrors "finpost-workers/internal/common/errors"
	"finpost-workers/internal/common/logger"
	"finpost-workers/internal/common/metrics"
	"finpost-workers/internal/payments"
)

// maxBodyBytes caps webhook payload reads. Provider events are small; a
// larger body is hostile.
const maxBodyBytes = 1 << 20

// verifier is the payments surface the handler needs.
type verifier interface {
	VerifyAndParseWebhook(provider string, body []byte, signatureHeader string) (*payments.NormalizedEvent, error)
}

// lifecycle is the subscription surface driven by webhook events.
type lifecycle interface {
	OnPaymentSucceeded(ctx context.Context, subscriptionID, provider, externalPaymentID, currency string, amount decimal.Decimal) error
	OnPaymentFailed(ctx context.Context, subscriptionID, provider, externalPaymentID string) error
	Refund(ctx context.Context, provider, externalPaymentID string) error
}

// alerter receives security-relevant events.
type alerter interface {
	InvalidSignature(ctx context.Context, provider, remoteAddr string)
}

// Handler routes POST /webhooks/{provider} through verification into the
// subscription lifecycle.
type Handler struct {
	gateway verifier
	subs    lifecycle
	alerts  alerter
	logger  logger.Logger
}

func NewHandler(gateway verifier, subs lifecycle, alerts alerter, log logger.Logger) *Handler {
	return &Handler{gateway: gateway, subs: subs, alerts: alerts, logger: log}
}

// Register mounts the webhook routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.handle("stripe", "Stripe-Signature"))
	mux.HandleFunc("POST /webhooks/razorpay", h.handle("razorpay", "X-Razorpay-Signature"))
}

func (h *Handler) handle(provider, signatureHeader string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		event, err := h.gateway.VerifyAndParseWebhook(provider, body, r.Header.Get(signatureHeader))
		if err != nil {
			h.reject(w, r, provider, err)
			return
		}

		if err := h.dispatch(r.Context(), event); err != nil {
			metrics.WebhookEvents.WithLabelValues(provider, "error").Inc()
			h.logger.WithError(err).Error("process webhook event", map[string]interface{}{
				"provider":   provider,
				"event_type": string(event.Type),
			})
			// 500 tells the provider to retry; processing is idempotent.
			http.Error(w, "processing failed", http.StatusInternalServerError)
			return
		}

		metrics.WebhookEvents.WithLabelValues(provider, "accepted").Inc()
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) dispatch(ctx context.Context, event *payments.NormalizedEvent) error {
	switch event.Type {
	case payments.EventPaymentSucceeded:
		return h.subs.OnPaymentSucceeded(ctx, event.SubscriptionID, event.Provider, event.ExternalID, event.Currency, event.Amount)
	case payments.EventPaymentFailed:
		return h.subs.OnPaymentFailed(ctx, event.SubscriptionID, event.Provider, event.ExternalID)
	case payments.EventRefunded:
		return h.subs.Refund(ctx, event.Provider, event.ExternalID)
	case payments.EventIgnored:
		return nil
	default:
		return nil
	}
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, provider string, err error) {
	var stdErr *apperrors.StandardError
	code := http.StatusBadRequest
	outcome := "malformed"

	if errors.As(err, &stdErr) && stdErr.Code == apperrors.ErrCodeInvalidSignature {
		code = http.StatusUnauthorized
		outcome = "invalid_signature"
		h.alerts.InvalidSignature(r.Context(), provider, r.RemoteAddr)
	}

	metrics.WebhookEvents.WithLabelValues(provider, outcome).Inc()
	h.logger.WithError(err).Warn("webhook rejected", map[string]interface{}{
		"provider": provider,
		"remote":   r.RemoteAddr,
		"outcome":  outcome,
	})
	http.Error(w, http.StatusText(code), code)
}
