package scheduler

import (
	"github.com/railzwaylabs/subsync/internal/usage/vmm"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(func(s *vmm.Source) SnapshotPurger { return s }),
	fx.Provide(New),
)
