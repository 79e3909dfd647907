package usage

import (
	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/railzwaylabs/subsync/internal/usage/streamone"
	"github.com/railzwaylabs/subsync/internal/usage/vmm"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.sources",
	fx.Provide(
		vmm.NewSource,
		streamone.NewClient,
		streamone.NewSource,
		fx.Annotate(
			func(s *vmm.Source) usagedomain.Source { return s },
			fx.ResultTags(`group:"usage_sources"`),
		),
		fx.Annotate(
			func(s *streamone.Source) usagedomain.Source { return s },
			fx.ResultTags(`group:"usage_sources"`),
		),
	),
)
