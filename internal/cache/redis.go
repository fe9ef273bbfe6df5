package cache

import (
	"context"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var Client *redis.Client

// InitRedis connects to REDIS_URL. An unreachable server leaves Client nil
// so callers fall back to uncached lookups.
func InitRedis(ctx context.Context) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("Redis unavailable, news cache disabled")
		_ = client.Close()
		return
	}
	Client = client
	log.Info().Str("addr", addr).Msg("connected to Redis")
}
