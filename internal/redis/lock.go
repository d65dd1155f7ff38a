package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Niiaks/Escrow/internal/apperror"
)

var ErrLockHeld = apperror.New(apperror.KindConflict, "another request is already processing this resource")

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Lock represents a distributed lock
type Lock struct {
	client *Client
	key    string
	value  string
}

// AcquireLock attempts to acquire a distributed lock with a timeout
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	prefixedKey := c.key(nsLock, key)
	value := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, prefixedKey, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !ok {
		return nil, ErrLockHeld
	}

	return &Lock{
		client: c,
		key:    prefixedKey,
		value:  value,
	}, nil
}

// Release releases the lock if it is still held by the owner
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.value).Err()
}

// WithLock runs fn while holding key. The lock is released even if fn fails.
func (c *Client) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	lock, err := c.AcquireLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// Release on a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("Failed to release lock")
		}
	}()
	return fn()
}
