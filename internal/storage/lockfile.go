package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

const lockPollInterval = 25 * time.Millisecond

// acquireFileLock takes an exclusive advisory lock on path, waiting at most
// timeout. The kernel drops the lock when its holder exits, so a crashed run
// never blocks later appenders.
func acquireFileLock(ctx context.Context, path string, timeout time.Duration) (func(), error) {
	lock := flock.New(path)

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockPollInterval)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}

	return func() { _ = lock.Unlock() }, nil
}
