package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := zerolog.Nop()
	return NewWithClient(&log, rdb, "test:"), mr
}

func TestIdempotency_Lifecycle(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	cached, err := c.BeginIdempotent(ctx, "user:1:abc", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, cached)

	_, err = c.BeginIdempotent(ctx, "user:1:abc", time.Hour)
	assert.ErrorIs(t, err, ErrRequestInProgress)

	resp := CachedResponse{StatusCode: 201, Body: []byte(`{"success":true}`)}
	require.NoError(t, c.CompleteIdempotent(ctx, "user:1:abc", resp, time.Hour))

	cached, err = c.BeginIdempotent(ctx, "user:1:abc", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 201, cached.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(cached.Body))
}

func TestIdempotency_AbandonAllowsRetry(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.BeginIdempotent(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.AbandonIdempotent(ctx, "k"))

	cached, err := c.BeginIdempotent(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestWithLock(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	err := c.WithLock(ctx, "payment:1", time.Second, func() error {
		assert.True(t, mr.Exists("test:lock:payment:1"))

		err := c.WithLock(ctx, "payment:1", time.Second, func() error { return nil })
		assert.ErrorIs(t, err, ErrLockHeld)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:payment:1"))
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	c, mr := newTestClient(t)
	boom := errors.New("boom")

	err := c.WithLock(context.Background(), "withdrawal:1", time.Second, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("test:lock:withdrawal:1"))
}

func TestCheckRateLimit(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := c.CheckRateLimit(ctx, "user:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(2-i), res.Remaining)
	}

	res, err := c.CheckRateLimit(ctx, "user:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.WithinDuration(t, time.Now().Add(time.Minute), res.ResetAt, 5*time.Second)

	retry := res.RetryAfter(time.Now())
	assert.GreaterOrEqual(t, retry, 55*time.Second)
	assert.LessOrEqual(t, retry, time.Minute)

	other, err := c.CheckRateLimit(ctx, "user:2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestRetryAfterFloor(t *testing.T) {
	now := time.Now()
	res := &RateLimitResult{ResetAt: now.Add(100 * time.Millisecond)}
	assert.Equal(t, time.Second, res.RetryAfter(now))
	assert.Equal(t, time.Duration(0), (&RateLimitResult{Allowed: true}).RetryAfter(now))
}

func TestJSONCache(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	var out []string
	hit, err := c.GetJSON(ctx, "banks:NGN", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, "banks:NGN", []string{"Access Bank"}, time.Hour))

	hit, err = c.GetJSON(ctx, "banks:NGN", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"Access Bank"}, out)
}
