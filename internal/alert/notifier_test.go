// internal/alert/notifier_test.go
package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpost-workers/internal/common/logger"
)

// ==========================
// Test Fakes
// ==========================

type sentAlert struct {
	subject string
	message string
}

type fakeSNS struct {
	sent []sentAlert
	err  error
}

func (f *fakeSNS) PublishMessage(ctx context.Context, topicARN, subject, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentAlert{subject, message})
	return nil
}

func createTestNotifier(t *testing.T) (*Notifier, *fakeSNS) {
	sns := &fakeSNS{}
	return NewNotifier(sns, "arn:aws:sns:ap-south-1:000000000000:alerts", logger.NewTestLogger(t)), sns
}

// ==========================
// Invalid Signature Tests
// ==========================

func TestNotifier_InvalidSignatureAlwaysAlerts(t *testing.T) {
	n, sns := createTestNotifier(t)
	ctx := context.Background()

	n.InvalidSignature(ctx, "stripe", "203.0.113.7")
	n.InvalidSignature(ctx, "stripe", "203.0.113.7")

	require.Len(t, sns.sent, 2)
	assert.Contains(t, sns.sent[0].subject, "signature")
	assert.Contains(t, sns.sent[0].message, "provider=stripe")
	assert.Contains(t, sns.sent[0].message, "remote=203.0.113.7")
}

// ==========================
// Channel Failure Tests
// ==========================

func TestNotifier_ChannelFailureAlertsAtThreshold(t *testing.T) {
	n, sns := createTestNotifier(t)
	ctx := context.Background()
	sendErr := errors.New("telegram 502")

	n.ChannelFailure(ctx, "telegram", sendErr)
	n.ChannelFailure(ctx, "telegram", sendErr)
	assert.Empty(t, sns.sent, "below the threshold no alert goes out")

	n.ChannelFailure(ctx, "telegram", sendErr)
	require.Len(t, sns.sent, 1)
	assert.Contains(t, sns.sent[0].subject, "telegram")
	assert.Contains(t, sns.sent[0].message, "consecutive_failures=3")

	// The streak keeps counting past the threshold without re-alerting.
	n.ChannelFailure(ctx, "telegram", sendErr)
	assert.Len(t, sns.sent, 1)
}

func TestNotifier_RecoveryResetsStreak(t *testing.T) {
	n, sns := createTestNotifier(t)
	ctx := context.Background()
	sendErr := errors.New("slack 500")

	n.ChannelFailure(ctx, "slack", sendErr)
	n.ChannelFailure(ctx, "slack", sendErr)
	n.ChannelRecovered("slack")

	n.ChannelFailure(ctx, "slack", sendErr)
	n.ChannelFailure(ctx, "slack", sendErr)
	assert.Empty(t, sns.sent, "recovery must reset the consecutive counter")

	n.ChannelFailure(ctx, "slack", sendErr)
	assert.Len(t, sns.sent, 1)
}

func TestNotifier_StreaksAreIndependentPerPlatform(t *testing.T) {
	n, sns := createTestNotifier(t)
	ctx := context.Background()
	sendErr := errors.New("boom")

	n.ChannelFailure(ctx, "telegram", sendErr)
	n.ChannelFailure(ctx, "telegram", sendErr)
	n.ChannelFailure(ctx, "slack", sendErr)

	assert.Empty(t, sns.sent)
}

// ==========================
// Degraded Mode Tests
// ==========================

func TestNotifier_NilSNSLogsOnly(t *testing.T) {
	n := NewNotifier(nil, "", logger.NewTestLogger(t))

	assert.NotPanics(t, func() {
		n.InvalidSignature(context.Background(), "razorpay", "198.51.100.1")
	})
}

func TestNotifier_SNSErrorIsSwallowed(t *testing.T) {
	n, sns := createTestNotifier(t)
	sns.err = errors.New("sns unavailable")

	assert.NotPanics(t, func() {
		n.InvalidSignature(context.Background(), "stripe", "203.0.113.7")
	})
}
