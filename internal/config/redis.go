package config

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis mengembalikan client Redis, atau nil kalau Redis tidak tersedia.
// Redis di sini opsional: cache layer jalan pass-through tanpa Redis,
// jadi gagal connect bukan fatal.
func NewRedis() *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     GetEnv("REDIS_ADDR", "127.0.0.1:6379"),
		Password: GetEnv("REDIS_PASSWORD", ""),
		DB:       GetEnvInt("REDIS_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Println("[config] Redis tidak nyambung, cache nonaktif:", err)
		rdb.Close()
		return nil
	}

	log.Println("[config] Redis connected (DB", GetEnvInt("REDIS_DB", 0), ")")
	return rdb
}
