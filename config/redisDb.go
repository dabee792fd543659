package config

import (
	"context"
	"log"
	"os"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

// GetRedisLock returns nil when Redis has not been connected; callers treat that as "no distributed lock".
func GetRedisLock() *redislock.Client {
	return locker
}

// UseRedis installs an existing client (tests, ledgerctl).
func UseRedis(client *redis.Client) {
	rdb = client
	if client == nil {
		locker = nil
		return
	}
	locker = redislock.New(client)
}

// ConnectRedisWithRetry blocks until REDIS_ADDRESS answers a PING, then installs the
// client and its lock client. Call this from main() AFTER the HTTP server is listening.
func ConnectRedisWithRetry() {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
		log.Printf("REDIS_ADDRESS not set; defaulting to %s", addr)
	}
	ctx := context.Background()
	_ = retryUntil(ctx, "redis "+addr, func() error {
		client := NewRedisClient(addr)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return err
		}
		UseRedis(client)
		return nil
	})
}

// NewRedisClient opens a client for addr with REDIS_PASSWORD.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		PoolSize: intFromEnv("REDIS_POOL_SIZE", 100),
	})
}
