package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/raaihank/llm-privacy-gateway/internal/config"
	"go.uber.org/zap"
)

// Store is a byte cache for detection results. Misses and backend errors
// both read as a miss; callers fall through to the model.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Stats(ctx context.Context) (*Stats, error)
	Clear(ctx context.Context) error
	Close() error
}

// Stats represents cache performance statistics
type Stats struct {
	Backend     string  `json:"backend"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes,omitempty"`
}

// Config contains cache configuration
type Config struct {
	RedisURL       string
	MaxConnections int
	MinIdleConns   int
	DefaultTTL     time.Duration
	MaxItems       int
	KeyPrefix      string
}

// FromConfig maps the gateway cache section onto cache options
func FromConfig(cfg config.CacheConfig) *Config {
	return &Config{
		RedisURL:       cfg.RedisURL,
		MaxConnections: 10,
		MinIdleConns:   2,
		DefaultTTL:     cfg.TTL,
		MaxItems:       cfg.MaxItems,
		KeyPrefix:      cfg.KeyPrefix,
	}
}

// New builds the configured store, or nil when caching is disabled
func New(cfg config.CacheConfig, logger *zap.Logger) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Backend {
	case "memory":
		return NewMemoryCache(FromConfig(cfg)), nil
	case "redis":
		rc, err := NewRedisCache(FromConfig(cfg), logger)
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
