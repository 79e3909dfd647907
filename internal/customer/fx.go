package customer

import (
	"github.com/railzwaylabs/subsync/internal/customer/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.repository",
	fx.Provide(repository.Provide),
)
