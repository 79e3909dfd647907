package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process keyed mutex.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire blocks until the key is free or ctx ends. ttl is ignored; the
// holder releases through the returned func.
func (l *Local) Acquire(ctx context.Context, key string, _ time.Duration) (UnlockFunc, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrNotAcquired
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}
