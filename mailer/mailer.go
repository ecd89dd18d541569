// Package mailer sends transactional mail.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SendGrid delivers mail through the SendGrid v3 API.
type SendGrid struct {
	client   *sendgrid.Client
	fromName string
	from     string
	log      *slog.Logger
}

func NewSendGrid(apiKey, fromName, fromAddress string, log *slog.Logger) *SendGrid {
	if log == nil {
		log = slog.Default()
	}
	return &SendGrid{
		client:   sendgrid.NewSendClient(apiKey),
		fromName: fromName,
		from:     fromAddress,
		log:      log,
	}
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail(s.fromName, s.from)
	to := mail.NewEmail("", msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send mail: sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	s.log.Info("mail sent", "to", msg.To, "subject", msg.Subject, "status", resp.StatusCode)
	return nil
}

// LogMailer writes messages to the log instead of sending them. Used when no mail
// provider is configured.
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(log *slog.Logger) *LogMailer {
	if log == nil {
		log = slog.Default()
	}
	return &LogMailer{log: log}
}

func (l *LogMailer) Send(_ context.Context, msg Message) error {
	l.log.Info("mail not sent, no provider configured", "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}
