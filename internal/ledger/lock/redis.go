package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "subsync:lock:"
	retryInterval = 50 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis holds locks as SET NX PX keys so concurrent runs on different hosts
// exclude each other.
type Redis struct {
	client  *redis.Client
	maxWait time.Duration
}

func NewRedis(client *redis.Client, maxWait time.Duration) *Redis {
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return &Redis{client: client, maxWait: maxWait}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.maxWait)
	defer cancel()

	redisKey := keyPrefix + key
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotAcquired, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ErrNotAcquired
		case <-time.After(retryInterval):
		}
	}

	return func(unlockCtx context.Context) error {
		return releaseScript.Run(unlockCtx, r.client, []string{redisKey}, token).Err()
	}, nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
