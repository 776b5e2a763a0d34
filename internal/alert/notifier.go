// Package alert raises operator notifications over SNS for conditions that
// need a human: rejected webhook signatures, channels failing repeatedly.
// Alerting is never on the hot path of a publish decision.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finpost-workers/internal/common/logger"
)

// publisher is the SNS surface the notifier needs.
type publisher interface {
	PublishMessage(ctx context.Context, topicARN, subject, message string) error
}

// failureAlertThreshold is how many consecutive send failures a channel
// accumulates before the operator hears about it.
const failureAlertThreshold = 3

// Notifier debounces and sends operator alerts.
type Notifier struct {
	sns      publisher
	topicARN string
	logger   logger.Logger

	mu       sync.Mutex
	failures map[string]int
}

// NewNotifier builds a notifier. sns may be nil when alerting is disabled;
// alerts then go only to the log.
func NewNotifier(sns publisher, topicARN string, log logger.Logger) *Notifier {
	return &Notifier{
		sns:      sns,
		topicARN: topicARN,
		logger:   log,
		failures: make(map[string]int),
	}
}

// InvalidSignature alerts on a webhook that failed verification. Every
// occurrence alerts; forged webhooks are not a noise source worth debouncing.
func (n *Notifier) InvalidSignature(ctx context.Context, provider, remoteAddr string) {
	subject := "Webhook signature verification failed"
	message := fmt.Sprintf("provider=%s remote=%s at=%s", provider, remoteAddr, time.Now().UTC().Format(time.RFC3339))
	n.send(ctx, subject, message)
}

// ChannelFailure tracks consecutive send failures per platform and alerts
// when the streak crosses the threshold.
func (n *Notifier) ChannelFailure(ctx context.Context, platform string, err error) {
	n.mu.Lock()
	n.failures[platform]++
	streak := n.failures[platform]
	n.mu.Unlock()

	if streak != failureAlertThreshold {
		return
	}
	subject := fmt.Sprintf("Channel %s failing repeatedly", platform)
	message := fmt.Sprintf("platform=%s consecutive_failures=%d last_error=%v", platform, streak, err)
	n.send(ctx, subject, message)
}

// ChannelRecovered resets the failure streak after a successful send.
func (n *Notifier) ChannelRecovered(platform string) {
	n.mu.Lock()
	delete(n.failures, platform)
	n.mu.Unlock()
}

func (n *Notifier) send(ctx context.Context, subject, message string) {
	n.logger.Warn("operator alert", map[string]interface{}{
		"subject": subject,
		"message": message,
	})
	if n.sns == nil || n.topicARN == "" {
		return
	}
	if err := n.sns.PublishMessage(ctx, n.topicARN, subject, message); err != nil {
		n.logger.WithError(err).Error("publish operator alert", map[string]interface{}{"subject": subject})
	}
}
