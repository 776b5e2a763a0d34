// internal/channels/email.go
package channels

import (
	"context"
	"fmt"

	"finpost-workers/internal/common/config"
)

// emailSender is the minimal SES surface the adapter needs.
type emailSender interface {
	SendText(ctx context.Context, from, to, subject, body string) error
}

// EmailSender delivers posts as plain-text email through SES.
type EmailSender struct {
	ses  emailSender
	from string
	to   string
}

func NewEmailSender(ses emailSender, cfg config.IntegrationConfig) *EmailSender {
	return &EmailSender{
		ses:  ses,
		from: cfg.AWS.SES.FromEmail,
		to:   cfg.AWS.SES.ToEmail,
	}
}

func (e *EmailSender) Send(ctx context.Context, msg Message) error {
	subject := "Market update"
	if s, ok := msg.Metadata["subject"].(string); ok && s != "" {
		subject = s
	}
	if err := e.ses.SendText(ctx, e.from, e.to, subject, msg.Text); err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
