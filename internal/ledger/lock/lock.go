package lock

import (
	"context"
	"errors"
	"time"
)

var ErrNotAcquired = errors.New("lock_not_acquired")

type UnlockFunc func(ctx context.Context) error

// Locker serializes work on a key across goroutines, and across processes
// when backed by redis.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
