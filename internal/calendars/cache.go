package calendars

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"readerhub/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "calendars:feed:"

// FeedCache stores raw feed bodies by URL. Implementations must treat every
// failure as a miss.
type FeedCache interface {
	Get(ctx context.Context, url string) ([]byte, bool)
	Set(ctx context.Context, url string, body []byte)
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, url string) ([]byte, bool) {
	body, err := c.client.Get(ctx, CacheKey(url)).Bytes()
	if err != nil {
		if !isMiss(err) {
			c.log.Warn("Feed cache read failed", "error", err)
		}
		return nil, false
	}
	return body, true
}

func (c *RedisCache) Set(ctx context.Context, url string, body []byte) {
	if err := c.client.Set(ctx, CacheKey(url), body, c.ttl).Err(); err != nil {
		c.log.Warn("Feed cache write failed", "error", err)
	}
}

// CacheKey hashes the feed URL, which may embed a private token.
func CacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func isMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
