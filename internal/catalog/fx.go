package catalog

import (
	catalogdomain "github.com/railzwaylabs/subsync/internal/catalog/domain"
	"github.com/railzwaylabs/subsync/internal/catalog/service"
	"github.com/railzwaylabs/subsync/internal/usage/streamone"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(func(c *streamone.Client) catalogdomain.Provider { return c }),
	fx.Provide(service.NewService),
)
