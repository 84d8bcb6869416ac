package middleware

import (
	"strconv"
	"sync"
	"time"

	"sponsor_worker/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// RateLimiter is a fixed window limiter keyed by token subject, falling
// back to client IP.
type RateLimiter struct {
	requests map[string]*requestInfo
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time

	stop chan struct{}
	once sync.Once
}

type requestInfo struct {
	count     int
	expiresAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*requestInfo),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rl.stop:
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()

	return rl
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, info := range rl.requests {
		if now.After(info.expiresAt) {
			delete(rl.requests, key)
		}
	}
}

// allow counts a request for key and reports the remaining budget.
func (rl *RateLimiter) allow(key string) (ok bool, remaining int, reset time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	info, exists := rl.requests[key]
	if !exists || now.After(info.expiresAt) {
		info = &requestInfo{expiresAt: now.Add(rl.window)}
		rl.requests[key] = info
	}

	if info.count >= rl.limit {
		return false, 0, info.expiresAt
	}
	info.count++
	return true, rl.limit - info.count, info.expiresAt
}

func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if subject, ok := c.Locals("subject").(string); ok && subject != "" {
			key = "sub:" + subject
		}

		ok, remaining, reset := rl.allow(key)
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !ok {
			err := apperr.RateLimited(reset.Sub(rl.now()))
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(err.Details["retry_after"].(int)))
			return err
		}
		return c.Next()
	}
}
