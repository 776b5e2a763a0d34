// Package payments normalizes provider-specific billing webhooks and payment
// intents behind one interface. Signature verification fails closed: an
// unverified payload is never parsed past the byte level.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xeipuuv/gojsonschema"

	apperrors "finpost-workers/internal/common/errors"
	"finpost-workers/internal/common/logger"
)

// EventType is the provider-agnostic classification of a webhook.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventRefunded         EventType = "refunded"
	EventIgnored          EventType = "ignored"
)

// NormalizedEvent is the provider-independent view of a billing webhook.
type NormalizedEvent struct {
	Type           EventType
	Provider       string
	SubscriptionID string
	ExternalID     string
	Amount         decimal.Decimal
	Currency       string
}

// Gateway verifies, validates and normalizes webhooks from the configured
// providers, and creates payment intents.
type Gateway struct {
	stripeSecret   string
	razorpaySecret string
	taxRates       map[string]float64
	creator        intentCreator
	logger         logger.Logger
	now            func() time.Time

	stripeSchema   *gojsonschema.Schema
	razorpaySchema *gojsonschema.Schema
}

func NewGateway(stripeSecret, razorpaySecret string, taxRates map[string]float64, log logger.Logger) (*Gateway, error) {
	stripeSchema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(stripeEventSchema))
	if err != nil {
		return nil, fmt.Errorf("compile stripe schema: %w", err)
	}
	razorpaySchema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(razorpayEventSchema))
	if err != nil {
		return nil, fmt.Errorf("compile razorpay schema: %w", err)
	}

	return &Gateway{
		stripeSecret:   stripeSecret,
		razorpaySecret: razorpaySecret,
		taxRates:       taxRates,
		logger:         log,
		now:            time.Now,
		stripeSchema:   stripeSchema,
		razorpaySchema: razorpaySchema,
	}, nil
}

// WithIntentCreator plugs in a provider SDK client. Without one the gateway
// still prices intents and hands back a locally generated handle.
func (g *Gateway) WithIntentCreator(c intentCreator) *Gateway {
	g.creator = c
	return g
}

// WithClock replaces the time source. Test use only.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// stripeSignatureTolerance bounds replay of captured webhook deliveries.
const stripeSignatureTolerance = 5 * time.Minute

// VerifyAndParseWebhook checks the provider signature over the raw body,
// validates the payload shape, and maps it to a NormalizedEvent. Events the
// system does not act on come back as EventIgnored rather than an error so
// the endpoint can acknowledge them.
func (g *Gateway) VerifyAndParseWebhook(provider string, body []byte, signatureHeader string) (*NormalizedEvent, error) {
	switch provider {
	case "stripe":
		return g.parseStripe(body, signatureHeader)
	case "razorpay":
		return g.parseRazorpay(body, signatureHeader)
	default:
		return nil, apperrors.NewUnknownProviderError(provider)
	}
}

// parseStripe implements the t=...,v1=... signed-header scheme: the signed
// payload is "<timestamp>.<body>" under HMAC-SHA256 of the endpoint secret.
func (g *Gateway) parseStripe(body []byte, header string) (*NormalizedEvent, error) {
	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return nil, apperrors.NewInvalidSignatureError("stripe")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, apperrors.NewInvalidSignatureError("stripe")
	}
	if age := g.now().Sub(time.Unix(ts, 0)); age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return nil, apperrors.NewInvalidSignatureError("stripe")
	}

	mac := hmac.New(sha256.New, []byte(g.stripeSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	verified := false
	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			verified = true
			break
		}
	}
	if !verified {
		return nil, apperrors.NewInvalidSignatureError("stripe")
	}

	if err := g.validate(g.stripeSchema, "stripe", body); err != nil {
		return nil, err
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID       string            `json:"id"`
				Amount   int64             `json:"amount"`
				Currency string            `json:"currency"`
				Metadata map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, apperrors.NewMalformedPayloadError("stripe", err)
	}

	normalized := &NormalizedEvent{
		Provider:       "stripe",
		ExternalID:     event.Data.Object.ID,
		SubscriptionID: event.Data.Object.Metadata["subscription_id"],
		Amount:         minorUnitsToDecimal(event.Data.Object.Amount),
		Currency:       strings.ToUpper(event.Data.Object.Currency),
	}
	switch event.Type {
	case "payment_intent.succeeded", "invoice.payment_succeeded":
		normalized.Type = EventPaymentSucceeded
	case "payment_intent.payment_failed", "invoice.payment_failed":
		normalized.Type = EventPaymentFailed
	case "charge.refunded":
		normalized.Type = EventRefunded
	default:
		normalized.Type = EventIgnored
	}
	return normalized, nil
}

// parseRazorpay verifies the X-Razorpay-Signature header: plain hex
// HMAC-SHA256 of the body under the webhook secret.
func (g *Gateway) parseRazorpay(body []byte, header string) (*NormalizedEvent, error) {
	if header == "" {
		return nil, apperrors.NewInvalidSignatureError("razorpay")
	}

	mac := hmac.New(sha256.New, []byte(g.razorpaySecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(header)) {
		return nil, apperrors.NewInvalidSignatureError("razorpay")
	}

	if err := g.validate(g.razorpaySchema, "razorpay", body); err != nil {
		return nil, err
	}

	var event struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity struct {
					ID       string            `json:"id"`
					Amount   int64             `json:"amount"`
					Currency string            `json:"currency"`
					Notes    map[string]string `json:"notes"`
				} `json:"entity"`
			} `json:"payment"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, apperrors.NewMalformedPayloadError("razorpay", err)
	}

	entity := event.Payload.Payment.Entity
	normalized := &NormalizedEvent{
		Provider:       "razorpay",
		ExternalID:     entity.ID,
		SubscriptionID: entity.Notes["subscription_id"],
		Amount:         minorUnitsToDecimal(entity.Amount),
		Currency:       strings.ToUpper(entity.Currency),
	}
	switch event.Event {
	case "payment.captured":
		normalized.Type = EventPaymentSucceeded
	case "payment.failed":
		normalized.Type = EventPaymentFailed
	case "refund.processed":
		normalized.Type = EventRefunded
	default:
		normalized.Type = EventIgnored
	}
	return normalized, nil
}

func (g *Gateway) validate(schema *gojsonschema.Schema, provider string, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperrors.NewMalformedPayloadError(provider, err)
	}
	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return apperrors.NewMalformedPayloadError(provider, fmt.Errorf("schema violations: %s", strings.Join(issues, "; ")))
	}
	return nil
}

// Both providers report amounts in minor units (paise, cents).
func minorUnitsToDecimal(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(100))
}

// Intent is a provider-bound charge request with tax applied.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Provider     string
	PlanID       string
	Subtotal     decimal.Decimal
	TaxRate      decimal.Decimal
	TaxAmount    decimal.Decimal
	Total        decimal.Decimal
	Currency     string
	Jurisdiction string
	CreatedAt    time.Time
}

// intentCreator is the provider SDK seam. The gateway computes the taxed
// total; the creator talks to Stripe or Razorpay and returns their handle.
type intentCreator interface {
	CreateIntent(ctx context.Context, provider string, total decimal.Decimal, currency string) (id, clientSecret, status string, err error)
}

// CreatePaymentIntent prices a charge for a jurisdiction. Unknown
// jurisdictions get a zero tax rate; tax handling beyond a flat rate per
// jurisdiction is out of scope here.
func (g *Gateway) CreatePaymentIntent(ctx context.Context, provider, planID string, subtotal decimal.Decimal, currency, jurisdiction string) (*Intent, error) {
	if provider != "stripe" && provider != "razorpay" {
		return nil, apperrors.NewUnknownProviderError(provider)
	}
	if subtotal.IsNegative() {
		return nil, fmt.Errorf("subtotal must be non-negative, got %s", subtotal)
	}

	rate := decimal.NewFromFloat(g.taxRates[strings.ToUpper(jurisdiction)])
	tax := subtotal.Mul(rate).Round(2)
	total := subtotal.Add(tax)

	intent := &Intent{
		ID:           "local_" + uuid.NewString(),
		Status:       "requires_payment_method",
		Provider:     provider,
		PlanID:       planID,
		Subtotal:     subtotal,
		TaxRate:      rate,
		TaxAmount:    tax,
		Total:        total,
		Currency:     currency,
		Jurisdiction: strings.ToUpper(jurisdiction),
		CreatedAt:    g.now(),
	}

	// Tax is applied before the provider sees the amount; the SDK charges
	// the total, never the subtotal.
	if g.creator != nil {
		id, secret, status, err := g.creator.CreateIntent(ctx, provider, total, currency)
		if err != nil {
			return nil, fmt.Errorf("create %s intent: %w", provider, err)
		}
		intent.ID = id
		intent.ClientSecret = secret
		intent.Status = status
	}

	g.logger.Info("payment intent created", map[string]interface{}{
		"provider":     provider,
		"plan_id":      planID,
		"jurisdiction": intent.Jurisdiction,
		"total":        intent.Total.String(),
	})
	return intent, nil
}
