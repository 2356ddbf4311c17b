// Package mail sends transactional email for account flows.
package mail

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// Sender delivers the one-time-code emails used by registration and
// password recovery.
type Sender interface {
	SendConfirmationEmail(ctx context.Context, email, code string) error
	SendRecoveryEmail(ctx context.Context, email, code string) error
}

// ResendSender delivers email through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) SendConfirmationEmail(ctx context.Context, email, code string) error {
	html := fmt.Sprintf(`<h1>Finish registration</h1>
<p>To finish registration please follow the link below:
<a href="https://localhost/confirm-email?code=%s">complete registration</a></p>`, code)
	return s.send(ctx, email, "Confirm your registration", html)
}

func (s *ResendSender) SendRecoveryEmail(ctx context.Context, email, code string) error {
	html := fmt.Sprintf(`<h1>Password recovery</h1>
<p>To set a new password please follow the link below:
<a href="https://localhost/password-recovery?recoveryCode=%s">recover password</a></p>`, code)
	return s.send(ctx, email, "Password recovery", html)
}

func (s *ResendSender) send(ctx context.Context, to, subject, html string) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	return err
}

// NoopSender discards all email. Used in development when no API key is
// configured, and in tests.
type NoopSender struct{}

func (NoopSender) SendConfirmationEmail(context.Context, string, string) error { return nil }
func (NoopSender) SendRecoveryEmail(context.Context, string, string) error     { return nil }
