package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	// Max requests per window
	Max int
	// Window duration
	Window time.Duration
	// KeyGenerator identifies the client. An empty key bypasses the limiter.
	KeyGenerator func(c *fiber.Ctx) string
}

// DefaultRateLimiterConfig limits each client IP to 30 authentication
// requests per minute.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Max:    30,
		Window: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}
}

// clientLimiter tracks the fixed window of one client
type clientLimiter struct {
	count      int
	windowEnd  time.Time
	lastAccess time.Time
}

// RateLimiter implements fixed-window per-client rate limiting
type RateLimiter struct {
	config   RateLimiterConfig
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.Max == 0 {
		config.Max = def.Max
	}
	if config.Window == 0 {
		config.Window = def.Window
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = def.KeyGenerator
	}

	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]*clientLimiter),
		done:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Stop shuts down the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Handler returns the Fiber middleware handler
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.config.KeyGenerator(c)
		if key == "" {
			return c.Next()
		}

		now := time.Now()

		rl.mu.Lock()
		limiter, exists := rl.limiters[key]
		if !exists || now.After(limiter.windowEnd) {
			limiter = &clientLimiter{windowEnd: now.Add(rl.config.Window)}
			rl.limiters[key] = limiter
		}
		limiter.count++
		limiter.lastAccess = now
		count := limiter.count
		windowEnd := limiter.windowEnd
		rl.mu.Unlock()

		remaining := max(rl.config.Max-count, 0)
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", windowEnd.Format(time.RFC3339))

		if count > rl.config.Max {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(time.Until(windowEnd).Seconds())))
			return domain.ErrRateLimitExceeded
		}

		return c.Next()
	}
}

// cleanup removes stale entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, limiter := range rl.limiters {
				// Remove entries that haven't been accessed in 2 windows
				if now.Sub(limiter.lastAccess) > 2*rl.config.Window {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
