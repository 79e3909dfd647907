package eligibility

import (
	"github.com/railzwaylabs/subsync/internal/eligibility/service"
	"go.uber.org/fx"
)

var Module = fx.Module("eligibility.service",
	fx.Provide(service.NewService),
)
