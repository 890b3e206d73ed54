package utils

import (
	"net"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"store-scrape/internal/logger"
)

// RedisOptionsFromEnv：门店响应缓存的连接参数
// REDIS_HOST / REDIS_PORT / REDIS_PASS / REDIS_DB；REDIS_DB 非法时用 0
func RedisOptionsFromEnv() *redis.Options {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	db, err := strconv.Atoi(os.Getenv("REDIS_DB"))
	if err != nil || db < 0 {
		db = 0
	}
	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: os.Getenv("REDIS_PASS"),
		DB:       db,
	}
}

func OpenRedisFromEnv() *redis.Client {
	opt := RedisOptionsFromEnv()
	logger.L().Debug("cache_redis", "addr", opt.Addr, "db", opt.DB)
	return redis.NewClient(opt)
}
