// Package cache provides the redis-backed core.Cache used by the catalog.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/services/metrics"
)

// scanBatch is the COUNT hint given to SCAN and the size of each DEL batch.
const scanBatch = 200

type RedisCache struct {
	rdb *redis.Client
}

var _ core.Cache = (*RedisCache)(nil)

// NewRedisCache connects to the server at redisURL (e.g. "redis://localhost:6379/0").
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis URL")
	}
	return &RedisCache{rdb: redis.NewClient(opts)}, nil
}

// New returns a RedisCache when conf.Redis.URL is set and reachable, a core.NopCache otherwise.
// The returned func closes the connection.
func New(ctx context.Context, conf *core.Config, logger core.Logger) (core.Cache, func() error) {
	nop := func() error { return nil }
	if conf.Redis.URL == "" {
		logger.Info("redis URL not set, catalog cache disabled")
		return core.NopCache{}, nop
	}
	c, err := NewRedisCache(conf.Redis.URL)
	if err != nil {
		logger.Error("catalog cache disabled", err)
		return core.NopCache{}, nop
	}
	if err = c.Ping(ctx); err != nil {
		_ = c.Close()
		logger.Error("catalog cache disabled", err)
		return core.NopCache{}, nop
	}
	return c, c.Close
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return errors.Wrap(c.rdb.Ping(ctx).Err(), "pinging redis")
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == redis.Nil:
		metrics.CacheOpsTotal.WithLabelValues("get", "miss").Inc()
		return false, nil
	case err != nil:
		metrics.CacheOpsTotal.WithLabelValues("get", "error").Inc()
		return false, errors.Wrapf(err, "getting %s", key)
	}
	if err = json.Unmarshal(data, dest); err != nil {
		metrics.CacheOpsTotal.WithLabelValues("get", "error").Inc()
		return false, errors.Wrapf(err, "decoding %s", key)
	}
	metrics.CacheOpsTotal.WithLabelValues("get", "hit").Inc()
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	if err = c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		metrics.CacheOpsTotal.WithLabelValues("set", "error").Inc()
		return errors.Wrapf(err, "setting %s", key)
	}
	metrics.CacheOpsTotal.WithLabelValues("set", "ok").Inc()
	return nil
}

// DeletePrefix walks the keyspace with SCAN so the server is never blocked by KEYS.
func (c *RedisCache) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := c.rdb.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				metrics.CacheOpsTotal.WithLabelValues("invalidate", "error").Inc()
				return errors.Wrapf(err, "deleting %s*", prefix)
			}
		}
	}
	if err := iter.Err(); err != nil {
		metrics.CacheOpsTotal.WithLabelValues("invalidate", "error").Inc()
		return errors.Wrapf(err, "scanning %s*", prefix)
	}
	if err := flush(); err != nil {
		metrics.CacheOpsTotal.WithLabelValues("invalidate", "error").Inc()
		return errors.Wrapf(err, "deleting %s*", prefix)
	}
	metrics.CacheOpsTotal.WithLabelValues("invalidate", "ok").Inc()
	return nil
}
