package redis

import (
	"context"
	"fmt"

	nrredis "github.com/newrelic/go-agent/v3/integrations/nrredis-v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Niiaks/Escrow/internal/config"
)

// Key namespaces. Every key is stored as <prefix><namespace>:<id>.
const (
	nsCache       = "cache"
	nsIdempotency = "idempotency"
	nsLock        = "lock"
	nsRateLimit   = "ratelimit"
)

// Client wraps go-redis with the locking, idempotency, rate limiting and
// caching primitives the services rely on.
type Client struct {
	rdb       *redis.Client
	keyPrefix string
	log       *zerolog.Logger
}

// New connects to redis and verifies the connection within DialTimeout.
// When tracing is set, commands are reported to New Relic as datastore
// segments.
func New(log *zerolog.Logger, cfg *config.RedisConfig, tracing bool) (*Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	rdb := redis.NewClient(opts)
	if tracing {
		rdb.AddHook(nrredis.NewHook(opts))
	}

	ctx := context.Background()
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Address, err)
	}

	log.Info().Str("addr", cfg.Address).Int("db", cfg.DB).Msg("connected to redis")

	return NewWithClient(log, rdb, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing go-redis client.
func NewWithClient(log *zerolog.Logger, rdb *redis.Client, keyPrefix string) *Client {
	return &Client{
		rdb:       rdb,
		keyPrefix: keyPrefix,
		log:       log,
	}
}

func (c *Client) key(namespace, id string) string {
	return c.keyPrefix + namespace + ":" + id
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	c.log.Info().Msg("closing redis connection")
	return c.rdb.Close()
}
