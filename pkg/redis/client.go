// Package redis is the query cache's storage: byte values with a TTL and
// prefix-scoped deletion on top of go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
)

const scanBatch = 200

type Client struct {
	rdb  *redis.Client
	addr string
}

// NewClient connects and PINGs within ctx. The client is closed again if
// the ping fails.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, addr: cfg.Addr}, nil
}

// Get reports found=false, with a nil error, for a missing key.
func (c *Client) Get(ctx context.Context, key string) (val []byte, found bool, err error) {
	val, err = c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

// DeletePrefix unlinks every key starting with prefix and returns how many
// went. Keys are gathered with SCAN, so entries written meanwhile may
// survive.
func (c *Client) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	var deleted int64
	var keys []string
	var cursor uint64
	for {
		page, next, err := c.rdb.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("scanning %s*: %w", prefix, err)
		}
		keys = append(keys, page...)
		if len(keys) >= scanBatch || next == 0 {
			if len(keys) > 0 {
				n, err := c.rdb.Unlink(ctx, keys...).Result()
				deleted += n
				if err != nil {
					return deleted, fmt.Errorf("unlinking %d keys: %w", len(keys), err)
				}
				keys = keys[:0]
			}
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Addr() string { return c.addr }

func (c *Client) Close() error {
	return c.rdb.Close()
}
