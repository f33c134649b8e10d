package notification

import (
	"context"
	"log/slog"
)

// Message describes an outbound SMS payload.
type Message struct {
	PhoneNumber string
	Body        string
}

// Notifier delivers SMS messages to downstream providers. Delivery results
// are advisory: callers log failures and move on.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes messages to the
// logger instead of a real SMS provider.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging SMS stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("sms", "phone_number", message.PhoneNumber, "body", message.Body)
	return nil
}
