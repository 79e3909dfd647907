package ledger

import (
	"time"

	"github.com/railzwaylabs/subsync/internal/ledger/lock"
	"github.com/railzwaylabs/subsync/internal/ledger/repository"
	"github.com/railzwaylabs/subsync/internal/ledger/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewLocker),
	fx.Provide(service.NewStore),
)

type LockerParam struct {
	fx.In

	Redis *redis.Client `optional:"true"`
	Log   *zap.Logger
}

// NewLocker prefers redis so concurrent runs on separate hosts exclude each
// other, and falls back to an in-process lock.
func NewLocker(p LockerParam) lock.Locker {
	if p.Redis != nil {
		p.Log.Named("ledger.lock").Info("using redis instance locks")
		return lock.NewRedis(p.Redis, 10*time.Second)
	}
	return lock.NewLocal()
}
