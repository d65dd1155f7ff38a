package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitResult is the outcome of one sliding-window check. ResetAt is when
// the oldest request in the window expires and a slot frees up.
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// RetryAfter is how long a denied caller should wait, rounded up to a second.
func (r *RateLimitResult) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	return max(r.ResetAt.Sub(now).Round(time.Second), time.Second)
}

// KEYS[1] sorted set of request timestamps in ms.
// ARGV: now_ms, window_ms, limit, member. Returns {allowed, remaining, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window_ms)

	local count = redis.call("ZCARD", key)
	local allowed = 0
	if count < limit then
		redis.call("ZADD", key, now, ARGV[4])
		redis.call("PEXPIRE", key, window_ms)
		allowed = 1
		count = count + 1
	end

	local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
	local oldest_ms = now
	if oldest[2] then
		oldest_ms = tonumber(oldest[2])
	end
	return {allowed, limit - count, oldest_ms}
`)

// CheckRateLimit counts a request against key's sliding window and reports
// whether it fits under limit. key identifies the caller, e.g. "user:<id>".
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	now := time.Now()

	res, err := slidingWindowScript.Run(ctx, c.rdb, []string{c.key(nsRateLimit, key)},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		now.UnixNano(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}

	return &RateLimitResult{
		Allowed:   res[0] == 1,
		Remaining: max(res[1], 0),
		ResetAt:   time.UnixMilli(res[2]).Add(window),
	}, nil
}
