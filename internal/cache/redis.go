package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Erudition/Posthog-Person-Bot-Tagger/pkg/logger"
)

// Cache stores raw reputation feed payloads between runs so unchanged
// lists are not refetched every invocation.
type Cache interface {
	Get(ctx context.Context, source string) ([]byte, bool)
	Set(ctx context.Context, source string, payload []byte)
	Close() error
}

// RedisCache implements Cache using Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Config holds Redis cache configuration
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// NewRedisCache creates a new Redis-backed feed cache
func NewRedisCache(cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 6 * time.Hour
	}

	logger.Info(fmt.Sprintf("Connected to Redis feed cache at %s:%d", cfg.Host, cfg.Port))

	return &RedisCache{client: client, ttl: ttl, prefix: "bottagger:feed:"}, nil
}

// Get returns a cached feed payload, if present. Cache errors degrade
// to a miss so a broken cache never blocks ingestion.
func (c *RedisCache) Get(ctx context.Context, source string) ([]byte, bool) {
	payload, err := c.client.Get(ctx, c.prefix+source).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

// Set stores a feed payload with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, source string, payload []byte) {
	if err := c.client.Set(ctx, c.prefix+source, payload, c.ttl).Err(); err != nil {
		logger.Warn(fmt.Sprintf("Failed to cache feed %s: %v", source, err))
	}
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
