package security

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/llm-privacy-gateway/internal/config"
)

// RateLimiter implements per-client token bucket rate limiting
type RateLimiter struct {
	config  *config.SecurityConfig
	clients map[string]*clientLimiter
	mu      sync.Mutex
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.SecurityConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client IP is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.RateLimit.Enabled {
		return true
	}

	now := r.now()
	return r.getLimiter(clientIP, now).AllowN(now, 1)
}

// Tracked returns the number of clients with a live bucket
func (r *RateLimiter) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// getLimiter gets or creates the limiter for a client IP
func (r *RateLimiter) getLimiter(clientIP string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, exists := r.clients[clientIP]; exists {
		c.lastSeen = now
		return c.limiter
	}

	perMin := r.config.RateLimit.RequestsPerMin
	burst := r.config.RateLimit.Burst
	if burst <= 0 {
		burst = perMin
	}

	c := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Limit(float64(perMin)/60.0), burst),
		lastSeen: now,
	}
	r.clients[clientIP] = c
	return c.limiter
}

// CleanupOldBuckets removes limiters idle for longer than maxIdle
func (r *RateLimiter) CleanupOldBuckets(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for ip, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine prunes idle clients until ctx is cancelled
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets(time.Hour)
			}
		}
	}()
}
