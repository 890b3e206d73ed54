package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"store-scrape/internal/geo"
)

// Cache：附近门店响应缓存，值为接口 Data 字段的原始 JSON
// 约束：实现的错误只用于日志，调用方遇错回退到实时查询
type Cache interface {
	Get(ctx context.Context, c geo.Coordinate) ([]byte, bool, error)
	Set(ctx context.Context, c geo.Coordinate, data []byte) error
}

// RedisCache：基于 Redis 的响应缓存，键为 store-scrape:nearby:<模板哈希>:lat,lng
// 约束：不同 LOCATOR_URL 的结果互不可见
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(rdb *redis.Client, urlTemplate string, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: CachePrefix(urlTemplate), ttl: ttl}
}

// CachePrefix：按 URL 模板区分的键前缀
func CachePrefix(urlTemplate string) string {
	return fmt.Sprintf("store-scrape:nearby:%016x:", xxhash.Sum64String(urlTemplate))
}

func (c *RedisCache) key(p geo.Coordinate) string { return c.prefix + p.String() }

func (c *RedisCache) Get(ctx context.Context, p geo.Coordinate) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.key(p)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, p geo.Coordinate, data []byte) error {
	return c.rdb.Set(ctx, c.key(p), data, c.ttl).Err()
}
