// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_publishes_total",
			Help: "Total number of content publishes by platform and result",
		},
		[]string{"platform", "result"},
	)

	PublishesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_publishes_skipped_total",
			Help: "Publishes skipped by the rate limiter per content type",
		},
		[]string{"content_type"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "publisher_tick_duration_seconds",
			Help: "Duration of a publisher worker tick in seconds",
		},
	)

	QueueItemsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_items_enqueued_total",
			Help: "Total queue items enqueued by platform",
		},
		[]string{"platform"},
	)

	QueueItemsClaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_items_claimed_total",
			Help: "Total queue items claimed for processing by platform",
		},
		[]string{"platform"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Payment webhook events received by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	SubscriptionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_subscription_transitions_total",
			Help: "Subscription status transitions by target status",
		},
		[]string{"to_status"},
	)
)
