package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"coursehub/pkg/errors"
	"coursehub/pkg/logger"
	"coursehub/pkg/response"
)

// IPRateLimiter throttles requests per client IP. It guards endpoints that
// run before a user is known, such as socket upgrades.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    time.Duration
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(every time.Duration, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		every:    every,
		burst:    burst,
	}
}

func (rl *IPRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			r := rl.get(ip).Reserve()
			if delay := r.Delay(); delay > 0 {
				r.Cancel()
				logger.Warn("RATE LIMIT: blocked request from IP %s (retry in %v)", ip, delay)
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded", delay))
			}
			return next(c)
		}
	}
}

func (rl *IPRateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(rl.every), rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// StartCleanup forgets visitors idle for longer than maxIdle until ctx ends.
func (rl *IPRateLimiter) StartCleanup(ctx context.Context, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.mu.Lock()
				for ip, v := range rl.visitors {
					if time.Since(v.lastSeen) > maxIdle {
						delete(rl.visitors, ip)
					}
				}
				rl.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
}
