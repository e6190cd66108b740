package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESConfig struct {
	FromEmail string
	FromName  string
	// ConfigurationSet routes delivery events; empty uses the account default.
	ConfigurationSet string
}

type SESSender struct {
	api       SESAPI
	from      sender
	configSet string
	log       *slog.Logger
}

// NewSESSender returns nil for a nil client.
func NewSESSender(api SESAPI, cfg SESConfig, log *slog.Logger) *SESSender {
	if api == nil {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &SESSender{
		api:       api,
		from:      newSender(cfg.FromName, cfg.FromEmail),
		configSet: cfg.ConfigurationSet,
		log:       log,
	}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.api == nil {
		return ErrSenderNotConfigured
	}

	body := &types.Body{}
	if msg.Body != "" {
		body.Text = utf8(msg.Body)
	}
	if msg.HTML != "" {
		body.Html = utf8(msg.HTML)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.header()),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8(msg.Subject), Body: body},
		},
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		s.log.ErrorContext(ctx, "ses send failed", slog.Any("err", err), slog.String("to", msg.To))
		return fmt.Errorf("notify: ses: %w", err)
	}

	s.log.InfoContext(ctx, "email sent",
		slog.String("provider", "ses"),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}

func utf8(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

var _ EmailSender = (*SESSender)(nil)
