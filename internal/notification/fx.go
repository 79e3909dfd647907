package notification

import (
	"github.com/railzwaylabs/subsync/internal/config"
	notificationdomain "github.com/railzwaylabs/subsync/internal/notification/domain"
	"github.com/railzwaylabs/subsync/internal/notification/email"
	"github.com/railzwaylabs/subsync/internal/notification/service"
	"github.com/railzwaylabs/subsync/internal/notification/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(
		NewMailSender,
		fx.Annotate(NewOpsSender, fx.ResultTags(`name:"ops"`)),
		service.NewEmitter,
	),
)

func NewMailSender(cfg config.Config, log *zap.Logger) notificationdomain.Sender {
	if !cfg.SMTP.Enabled() {
		log.Warn("smtp not configured, notifications are logged only")
		return email.NewLogSender(log)
	}
	return email.NewSMTPSender(cfg.SMTP, log)
}

// NewOpsSender returns nil when no webhook is configured.
func NewOpsSender(cfg config.Config) notificationdomain.Sender {
	if cfg.Slack.WebhookURL == "" {
		return nil
	}
	return slack.NewSender(cfg.Slack.WebhookURL)
}
