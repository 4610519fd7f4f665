package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/brainsait/reconciler/internal/config"
)

type Client struct {
	rdb       redis.UniversalClient
	keyPrefix string
	log       zerolog.Logger
}

func New(ctx context.Context, log zerolog.Logger, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log = log.With().Str("component", "redis").Logger()
	log.Info().Str("address", cfg.Address).Msg("connected to redis")

	return NewWithClient(rdb, cfg.KeyPrefix, log), nil
}

// NewWithClient wraps an existing go-redis client.
func NewWithClient(rdb redis.UniversalClient, keyPrefix string, log zerolog.Logger) *Client {
	return &Client{rdb: rdb, keyPrefix: keyPrefix, log: log}
}

func (c *Client) prefixKey(key string) string {
	return c.keyPrefix + key
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	c.log.Info().Msg("closing redis client connection")
	return c.rdb.Close()
}
