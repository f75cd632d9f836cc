package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisCache stores detection results in Redis with a TTL
type RedisCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache creates a new Redis-backed detection cache
func NewRedisCache(config *Config, logger *zap.Logger) (*RedisCache, error) {
	// Parse Redis URL
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	cache := &RedisCache{
		client: redis.NewClient(opts),
		config: config,
		logger: logger,
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.client.Ping(ctx).Err(); err != nil {
		cache.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Detection cache initialized",
		zap.String("backend", "redis"),
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// Get returns the cached bytes for key
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if err == redis.Nil {
		rc.misses.Add(1)
		return nil, false
	} else if err != nil {
		rc.misses.Add(1)
		rc.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	rc.hits.Add(1)
	return data, true
}

// Set stores value under key for the configured TTL
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if err := rc.client.Set(ctx, rc.key(key), value, rc.config.DefaultTTL).Err(); err != nil {
		rc.logger.Error("Failed to cache detection", zap.Error(err))
	}
}

// Stats returns cache performance statistics
func (rc *RedisCache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Backend: "redis",
		Hits:    rc.hits.Load(),
		Misses:  rc.misses.Load(),
	}
	stats.HitRate = hitRate(stats.Hits, stats.Misses)

	keys, err := rc.scan(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalKeys = int64(len(keys))

	// INFO is optional on some managed deployments
	if info, err := rc.client.Info(ctx, "memory").Result(); err == nil {
		for _, line := range strings.Split(info, "\r\n") {
			if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
				if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
					stats.MemoryUsage = mem
				}
			}
		}
	}

	return stats, nil
}

// Clear removes all cached detections under the key prefix
func (rc *RedisCache) Clear(ctx context.Context) error {
	keys, err := rc.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	// Delete keys in batches
	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := rc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			rc.logger.Error("Failed to delete cache keys", zap.Error(err))
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	rc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

func (rc *RedisCache) scan(ctx context.Context) ([]string, error) {
	iter := rc.client.Scan(ctx, 0, rc.config.KeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return keys, nil
}

func (rc *RedisCache) key(k string) string {
	return rc.config.KeyPrefix + k
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	userInfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return url
	}
	if user, _, hasPass := strings.Cut(userInfo, ":"); hasPass {
		userInfo = user + ":***"
	}
	return scheme + "://" + userInfo + "@" + host
}
