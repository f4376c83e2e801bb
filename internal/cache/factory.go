package cache

import (
	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Backend string
	Prefix  string // redis key prefix
	Memory  MemoryConfig
}

// NewStore picks the backend named in cfg. redisClient is only used for
// the redis backend.
func NewStore(cfg Config, redisClient *redis.Client) Store {
	switch cfg.Backend {
	case BackendRedis:
		return NewRedisStore(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		})
	default:
		return NewMemoryStore(cfg.Memory)
	}
}
