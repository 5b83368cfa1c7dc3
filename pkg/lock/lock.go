// Package lock provides the Redis-backed advisory lock that guards
// finalize_revenue_window against concurrent invocation for the same
// (window_start, window_end, payment_type) tuple, per §5 of SPEC_FULL.md.
package lock

import (
	"context"
	"errors"
	"time"

	"integrity-core/pkg/rediskey"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("lock", fx.Provide(NewLockerFromConfig))

// NewLockerFromConfig builds a Locker with a fixed 10-minute lock TTL,
// bounding how long a crashed finalize_revenue_window run can block a retry.
func NewLockerFromConfig(rdb *redis.Client) *Locker {
	return NewLocker(rdb, 10*time.Minute)
}

// ErrNotHeld indicates the lock was lost (expired or released by another
// holder) before Release was called.
var ErrNotHeld = errors.New("lock: not held")

// ErrAlreadyHeld indicates another run already holds the window lock.
var ErrAlreadyHeld = errors.New("lock: already held")

// WindowLock is a single acquire/release handle for one window run.
type WindowLock struct {
	rdb   *redis.Client
	key   string
	token string
}

// Locker acquires advisory locks scoped to a revenue window run.
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLocker builds a Locker with the given lock TTL. The TTL bounds how
// long a crashed finalize_revenue_window run can block a retry before the
// lock self-expires.
func NewLocker(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Locker{rdb: rdb, ttl: ttl}
}

// Acquire attempts to take the window lock for (windowStart, windowEnd,
// paymentType). It returns ErrAlreadyHeld if another run currently holds it.
func (l *Locker) Acquire(ctx context.Context, windowStart, windowEnd, paymentType string) (*WindowLock, error) {
	key := rediskey.BuildWindowLockKey(windowStart, windowEnd, paymentType)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyHeld
	}

	return &WindowLock{rdb: l.rdb, key: key, token: token}, nil
}

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was re-acquired by another run is never released out
// from under its new holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Release gives up the lock. It is a no-op error (ErrNotHeld) if the lock
// already expired or was taken over by another run.
func (w *WindowLock) Release(ctx context.Context) error {
	res, err := w.rdb.Eval(ctx, releaseScript, []string{w.key}, w.token).Result()
	if err != nil {
		return err
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Extend refreshes the lock's TTL, used by long-running window finalization
// to avoid losing the lock mid-write.
func (w *WindowLock) Extend(ctx context.Context, ttl time.Duration) error {
	ok, err := w.rdb.Expire(ctx, w.key, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
