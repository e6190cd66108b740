package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const defaultFromName = "Appointly"

// ErrSenderNotConfigured is returned by a sender built without credentials.
var ErrSenderNotConfigured = errors.New("notify: email sender not configured")

type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

// sender is the envelope identity shared by every provider.
type sender struct {
	name  string
	email string
}

func newSender(name, email string) sender {
	if strings.TrimSpace(name) == "" {
		name = defaultFromName
	}
	return sender{name: name, email: email}
}

func (s sender) header() string {
	return (&mail.Address{Name: s.name, Address: s.email}).String()
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	Endpoint  string
}

type SendGridSender struct {
	client *sendgrid.Client
	from   sender
	log    *slog.Logger
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, log *slog.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	client := sendgrid.NewSendClient(cfg.APIKey)
	if cfg.Endpoint != "" {
		client.BaseURL = cfg.Endpoint
	}
	return &SendGridSender{
		client: client,
		from:   newSender(cfg.FromName, cfg.FromEmail),
		log:    log,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return ErrSenderNotConfigured
	}

	resp, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		s.log.ErrorContext(ctx, "sendgrid request failed", slog.Any("err", err), slog.String("to", msg.To))
		return fmt.Errorf("notify: sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.log.ErrorContext(ctx, "sendgrid rejected message",
			slog.Int("status", resp.StatusCode),
			slog.String("to", msg.To),
			slog.String("response", truncate(resp.Body, 256)),
		)
		return fmt.Errorf("notify: sendgrid status %d", resp.StatusCode)
	}

	s.log.InfoContext(ctx, "email sent",
		slog.String("provider", "sendgrid"),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// build orders content text/plain first, which the v3 API requires.
func (s *SendGridSender) build(msg EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(s.from.name, s.from.email))
	m.Subject = msg.Subject
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Body))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type StubEmailSender struct {
	log *slog.Logger
}

func NewStubEmailSender(log *slog.Logger) *StubEmailSender {
	if log == nil {
		log = slog.Default()
	}
	return &StubEmailSender{log: log}
}

// Send only logs.
func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.log.InfoContext(ctx, "email not sent (stub provider)", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
