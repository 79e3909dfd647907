package email

import (
	"context"

	notificationdomain "github.com/railzwaylabs/subsync/internal/notification/domain"
	"go.uber.org/zap"
)

// LogSender writes messages to the log. Used when no relay is configured.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log.Named("notification.log")}
}

func (l *LogSender) Send(_ context.Context, msg notificationdomain.Message) error {
	l.log.Info("notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.HTMLBody),
	)
	return nil
}
