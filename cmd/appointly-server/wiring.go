package main

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"google.golang.org/api/option"

	gcalendar "appointly/internal/calendar/google"
	"appointly/internal/config"
	"appointly/internal/notify"
)

func newCalendar(ctx context.Context, cfg config.Config) (*gcalendar.Client, error) {
	creds := gcalendar.TokenFileCredentials{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		TokenFile:    cfg.Google.TokenFile,
	}
	httpClient, err := creds.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Google.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Google.Endpoint))
	}
	return gcalendar.New(ctx, gcalendar.Config{
		CalendarID: cfg.Google.CalendarID,
		TimeZone:   cfg.Booking.TimeZone,
	}, opts...)
}

func newNotifier(ctx context.Context, cfg config.Config, log *slog.Logger) (*notify.EmailNotifier, error) {
	mailLog := log.With(slog.String("component", "mail"), slog.String("provider", cfg.Mail.Provider))

	switch cfg.Mail.Provider {
	case config.MailProviderSendGrid:
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.Mail.SendGridAPIKey,
			FromEmail: cfg.Mail.FromEmail,
			FromName:  cfg.Mail.FromName,
			Endpoint:  cfg.Mail.SendGridEndpoint,
		}, mailLog)
		return notify.NewEmailNotifier(sender), nil
	case config.MailProviderSES:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail:        cfg.Mail.FromEmail,
			FromName:         cfg.Mail.FromName,
			ConfigurationSet: cfg.Mail.SESConfigurationSet,
		}, mailLog)
		return notify.NewEmailNotifier(sender), nil
	default:
		return notify.NewEmailNotifier(notify.NewStubEmailSender(mailLog)), nil
	}
}
