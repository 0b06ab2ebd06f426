package notify

import (
	"context"
	"log/slog"
)

// LogSender only logs. It is the default when no provider is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email not sent (log provider)", "to", msg.To, "subject", msg.Subject)
	return nil
}
