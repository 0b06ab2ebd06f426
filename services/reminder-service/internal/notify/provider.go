package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type ProviderConfig struct {
	Provider string // smtp | sendgrid | ses | log
	SMTP     SMTPConfig
	SendGrid SendGridConfig
	SES      SESConfig
}

// NewSender picks the transport named by cfg.Provider.
func NewSender(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) (EmailSender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "log":
		return NewLogSender(logger), nil
	case "smtp":
		if cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("notify: SMTP_HOST is required for the smtp provider")
		}
		return NewSMTPSender(cfg.SMTP), nil
	case "sendgrid":
		return NewSendGridSender(cfg.SendGrid, logger)
	case "ses":
		return NewSESSenderFromEnv(ctx, cfg.SES, logger)
	default:
		return nil, fmt.Errorf("notify: unknown email provider %q", cfg.Provider)
	}
}
