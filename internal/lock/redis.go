// internal/lock/redis.go
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes the key only if it still carries the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Redis is a Locker shared across processes through SETNX with a TTL.
// Acquire retries with exponential backoff until the context ends.
type Redis struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	prefix   string
}

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{
		rdb:      rdb,
		unlockSc: redis.NewScript(unlockLua),
		prefix:   prefix,
	}
}

// Connect opens a client for addr and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

// key namespaces key under the configured prefix, which carries its own
// separator.
func (r *Redis) key(key string) string {
	return r.prefix + key
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := r.key(key)

	op := func() (struct{}, error) {
		ok, err := r.rdb.SetNX(ctx, lk, token, ttl).Result()
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("redis: acquire lock %s: %w", key, err))
		}
		if !ok {
			return struct{}{}, ErrLockHeld
		}
		return struct{}{}, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	if _, err := backoff.Retry(ctx, op, backoff.WithBackOff(policy), backoff.WithMaxElapsedTime(ttl)); err != nil {
		if errors.Is(err, ErrLockHeld) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
		}
		return nil, err
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.unlockSc.Run(unlockCtx, r.rdb, []string{lk}, token).Err()
	}, nil
}
