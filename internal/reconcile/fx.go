package reconcile

import (
	notificationservice "github.com/railzwaylabs/subsync/internal/notification/service"
	reconciledomain "github.com/railzwaylabs/subsync/internal/reconcile/domain"
	"github.com/railzwaylabs/subsync/internal/reconcile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.service",
	fx.Provide(func(e *notificationservice.Emitter) reconciledomain.Notifier { return e }),
	fx.Provide(service.NewService),
)
