package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Niiaks/Escrow/internal/apperror"
)

const idempotencyPending = "pending"

var ErrRequestInProgress = apperror.New(apperror.KindConflict, "a request with this idempotency key is still in progress")

// CachedResponse is the stored outcome of a completed idempotent request.
type CachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

// BeginIdempotent claims key for a new request. It returns the cached
// response when the key already completed, ErrRequestInProgress when another
// request holds it, and (nil, nil) when the caller now owns the key.
func (c *Client) BeginIdempotent(ctx context.Context, key string, ttl time.Duration) (*CachedResponse, error) {
	prefixedKey := c.key(nsIdempotency, key)

	set, err := c.rdb.SetNX(ctx, prefixedKey, idempotencyPending, ttl).Result()
	if err != nil {
		return nil, err
	}
	if set {
		return nil, nil
	}

	val, err := c.rdb.Get(ctx, prefixedKey).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; let the caller retry.
		return nil, ErrRequestInProgress
	}
	if err != nil {
		return nil, err
	}
	if val == idempotencyPending {
		return nil, ErrRequestInProgress
	}

	var cached CachedResponse
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

// CompleteIdempotent stores the response for replay.
func (c *Client) CompleteIdempotent(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(nsIdempotency, key), b, ttl).Err()
}

// AbandonIdempotent frees key so the client may retry after a failure.
func (c *Client) AbandonIdempotent(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(nsIdempotency, key)).Err()
}
