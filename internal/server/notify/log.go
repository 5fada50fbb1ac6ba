package notify

import (
	"context"

	"github.com/dmitrijs2005/eventhub/internal/logging"
)

// LogSender writes messages to the log instead of delivering them.
// Used for local development when no AWS region is configured.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger.With("module", "notify")}
}

func (s *LogSender) SendSMS(ctx context.Context, phone, text string) error {
	s.logger.Info(ctx, "sms not delivered, no transport configured", "phone", phone, "text", text)
	return nil
}

func (s *LogSender) SendEmail(ctx context.Context, to, subject, body string) error {
	s.logger.Info(ctx, "email not delivered, no transport configured", "to", to, "subject", subject, "body", body)
	return nil
}
