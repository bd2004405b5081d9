package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/pkg/config"
)

// Message is a single outbound email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns a SendGrid mailer when an API key is configured and a logging mailer otherwise.
func New(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
		logger.Info("sendgrid api key not configured, emails will be logged")
		return NewLogMailer(logger)
	}
	return NewSendGridMailer(cfg, logger)
}

// SendGridMailer sends through the SendGrid v3 API.
type SendGridMailer struct {
	send   func(ctx context.Context, email *mail.SGMailV3) (int, string, error)
	from   *mail.Email
	logger *zap.Logger
}

// NewSendGridMailer builds a SendGrid backed mailer.
func NewSendGridMailer(cfg config.MailConfig, logger *zap.Logger) *SendGridMailer {
	client := sendgrid.NewSendClient(cfg.SendGridAPIKey)
	return &SendGridMailer{
		send: func(ctx context.Context, email *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, email)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

// Send delivers the message, treating any non 2xx status as a failure.
func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	status, body, err := m.send(ctx, m.build(msg))
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", status, body)
	}
	m.logger.Debug("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

func (m *SendGridMailer) build(msg Message) *mail.SGMailV3 {
	email := mail.NewV3Mail()
	email.SetFrom(m.from)
	email.Subject = msg.Subject
	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	email.AddPersonalizations(p)
	if msg.Text != "" {
		email.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		email.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	return email
}

// LogMailer writes messages to the logger instead of delivering them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	m.logger.Info("email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("mail recipient required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("mail subject required")
	}
	if m.Text == "" && m.HTML == "" {
		return fmt.Errorf("mail body required")
	}
	return nil
}
