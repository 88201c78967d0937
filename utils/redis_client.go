package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/classifieds/config"
)

var (
	redisClient *redis.Client
	redisMu     sync.Mutex
)

// GetRedis returns a shared Redis client based on loaded config.
func GetRedis() *redis.Client {
	redisMu.Lock()
	defer redisMu.Unlock()
	if redisClient != nil {
		return redisClient
	}
	cfg := config.Get()
	redisClient = redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	// Ping only to log early; callers degrade gracefully on errors
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		Sugar.Warnf("redis ping failed: %v", err)
	}
	return redisClient
}

// SetRedis replaces the shared client, e.g. with one pointing at miniredis in tests.
func SetRedis(c *redis.Client) {
	redisMu.Lock()
	redisClient = c
	redisMu.Unlock()
}
