package database

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/walletpay/backend/internal/config"
)

// InitRedis returns a connected client, or nil when Redis is unreachable so
// callers can fall back to PostgreSQL.
func InitRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("Redis connection failed, continuing without Redis: %v", err)
		rdb.Close()
		return nil
	}

	log.Println("Redis connection established")
	return rdb
}
