// Package cache memoises query results in Redis. Keys are scoped to the
// document store fingerprint, so results computed against one store
// generation are never served for another.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/searcher"
)

const keyPrefix = "docquery:"

// Backend is satisfied by *redis.Client.
type Backend interface {
	Get(ctx context.Context, key string) (val []byte, found bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	flight  singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Resolve returns the cached result for query under scope, or runs compute
// and caches its result. Concurrent misses on one key run compute once.
// Backend errors are logged and treated as misses.
func (c *QueryCache) Resolve(ctx context.Context, scope, query string, compute func() searcher.QueryResult) (searcher.QueryResult, bool) {
	k := key(scope, query)
	if res, ok := c.load(ctx, k); ok {
		c.hits.Add(1)
		return res, true
	}
	c.misses.Add(1)

	v, _, _ := c.flight.Do(k, func() (any, error) {
		// a previous flight may have filled the key
		if res, ok := c.load(ctx, k); ok {
			return res, nil
		}
		res := compute()
		c.store(context.WithoutCancel(ctx), k, res)
		return res, nil
	})
	return v.(searcher.QueryResult), false
}

func (c *QueryCache) load(ctx context.Context, k string) (searcher.QueryResult, bool) {
	var res searcher.QueryResult
	raw, found, err := c.backend.Get(ctx, k)
	switch {
	case err != nil:
		c.logger.Warn("cache read", "key", k, "error", err)
		return res, false
	case !found:
		return res, false
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Warn("discarding undecodable cache entry", "key", k, "error", err)
		return res, false
	}
	return res, true
}

func (c *QueryCache) store(ctx context.Context, k string, res searcher.QueryResult) {
	raw, err := json.Marshal(res)
	if err == nil {
		err = c.backend.Set(ctx, k, raw, c.ttl)
	}
	if err != nil {
		c.logger.Warn("cache write", "key", k, "error", err)
	}
}

// Purge drops every entry this cache wrote, across all scopes.
func (c *QueryCache) Purge(ctx context.Context) (int64, error) {
	n, err := c.backend.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return n, fmt.Errorf("purging %s*: %w", keyPrefix, err)
	}
	c.logger.Info("cache purged", "keys", n)
	return n, nil
}

// Counts reports hits and misses seen by Resolve.
func (c *QueryCache) Counts() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// key hashes the query verbatim: responses echo the query, so queries
// differing only in case or spacing must not share an entry.
func key(scope, query string) string {
	sum := sha256.Sum256([]byte(query))
	return keyPrefix + scope + ":" + hex.EncodeToString(sum[:16])
}
