package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const advisoryLockKey int64 = 7_310_442_118

type unlockFunc func(ctx context.Context) error

// acquireAdvisoryLock pins one pooled connection for the session-scoped
// postgres lock; the same connection must release it.
func acquireAdvisoryLock(ctx context.Context, db *sql.DB) (unlockFunc, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve lock connection: %w", err)
	}

	var locked bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", advisoryLockKey).Scan(&locked); err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !locked {
		conn.Close()
		return nil, errors.New("another migration process holds the advisory lock")
	}

	return func(unlockCtx context.Context) error {
		defer conn.Close()
		var released bool
		if err := conn.QueryRowContext(unlockCtx, "SELECT pg_advisory_unlock($1)", advisoryLockKey).Scan(&released); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		if !released {
			return errors.New("advisory lock was not held by this session")
		}
		return nil
	}, nil
}
