package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/railzwaylabs/subsync/internal/config"
	notificationdomain "github.com/railzwaylabs/subsync/internal/notification/domain"
	reconciledomain "github.com/railzwaylabs/subsync/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	changesSubject = "[Shell Alert]: %s - Automatic changes made"
	errorsSubject  = "[Shell Alert]: %s - errors found while syncing subscriptions"
	lineSeparator  = "<br>"
)

// Emitter turns a customer log into at most one change report and one error
// report. Delivery failures are logged and dropped.
type Emitter struct {
	log  *zap.Logger
	cfg  config.ReconcileConfig
	mail notificationdomain.Sender
	ops  notificationdomain.Sender
}

type EmitterParam struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Mail   notificationdomain.Sender
	Ops    notificationdomain.Sender `name:"ops" optional:"true"`
}

func NewEmitter(p EmitterParam) *Emitter {
	return &Emitter{
		log:  p.Log.Named("notification.emitter"),
		cfg:  p.Config.Reconcile,
		mail: p.Mail,
		ops:  p.Ops,
	}
}

func (e *Emitter) EmitCustomer(ctx context.Context, customerName, salespersonEmail string, log reconciledomain.CustomerLog) {
	if len(log.Changes) > 0 {
		to := strings.TrimSpace(salespersonEmail)
		if to == "" {
			log.Error("no salesperson on file for customer %s, change report sent to %s", customerName, e.cfg.FallbackEmail)
			to = e.cfg.FallbackEmail
		}
		e.mailTo(ctx, notificationdomain.Message{
			To:       to,
			Subject:  fmt.Sprintf(changesSubject, customerName),
			HTMLBody: strings.Join(log.Changes, lineSeparator),
		})
	}

	if len(log.Errors) > 0 {
		msg := notificationdomain.Message{
			To:       e.cfg.OpsEmail,
			Subject:  fmt.Sprintf(errorsSubject, customerName),
			HTMLBody: strings.Join(log.Errors, lineSeparator),
		}
		e.mailTo(ctx, msg)
		if e.ops != nil {
			e.send(ctx, e.ops, msg)
		}
	}
}

func (e *Emitter) mailTo(ctx context.Context, msg notificationdomain.Message) {
	if strings.TrimSpace(msg.To) == "" {
		e.log.Warn("notification dropped, no recipient", zap.String("subject", msg.Subject))
		return
	}
	e.send(ctx, e.mail, msg)
}

func (e *Emitter) send(ctx context.Context, sender notificationdomain.Sender, msg notificationdomain.Message) {
	if err := sender.Send(ctx, msg); err != nil {
		e.log.Error("notification failed",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
	}
}
