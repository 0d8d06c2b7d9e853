package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter implements rate limiting for API endpoints. A general
// per-IP limiter covers every route; a stricter one guards the auth
// routes against credential stuffing.
type RateLimiter struct {
	ipLimiters      map[string]*rate.Limiter
	authLimiters    map[string]*rate.Limiter
	ipMutex         sync.Mutex
	authMutex       sync.Mutex
	ipLimiterRate   rate.Limit
	authLimiterRate rate.Limit
	ipBurst         int
	authBurst       int
	cleanupTicker   *time.Ticker
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(ipRequestsPerSecond, authRequestsPerMinute float64, ipBurst, authBurst int) *RateLimiter {
	limiter := &RateLimiter{
		ipLimiters:      make(map[string]*rate.Limiter),
		authLimiters:    make(map[string]*rate.Limiter),
		ipLimiterRate:   rate.Limit(ipRequestsPerSecond),
		authLimiterRate: rate.Limit(authRequestsPerMinute / 60),
		ipBurst:         ipBurst,
		authBurst:       authBurst,
		cleanupTicker:   time.NewTicker(5 * time.Minute),
	}

	go limiter.cleanup()

	return limiter
}

// cleanup periodically resets limiter maps to prevent unbounded growth
func (rl *RateLimiter) cleanup() {
	for range rl.cleanupTicker.C {
		rl.ipMutex.Lock()
		rl.ipLimiters = make(map[string]*rate.Limiter)
		rl.ipMutex.Unlock()

		rl.authMutex.Lock()
		rl.authLimiters = make(map[string]*rate.Limiter)
		rl.authMutex.Unlock()
	}
}

// Stop stops the rate limiter cleanup
func (rl *RateLimiter) Stop() {
	rl.cleanupTicker.Stop()
}

func (rl *RateLimiter) ipLimiter(ip string) *rate.Limiter {
	rl.ipMutex.Lock()
	defer rl.ipMutex.Unlock()

	limiter, ok := rl.ipLimiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rl.ipLimiterRate, rl.ipBurst)
		rl.ipLimiters[ip] = limiter
	}
	return limiter
}

func (rl *RateLimiter) authLimiter(ip string) *rate.Limiter {
	rl.authMutex.Lock()
	defer rl.authMutex.Unlock()

	limiter, ok := rl.authLimiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rl.authLimiterRate, rl.authBurst)
		rl.authLimiters[ip] = limiter
	}
	return limiter
}

// IPRateLimiterMiddleware limits requests per client IP across all routes
func (rl *RateLimiter) IPRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.ipLimiter(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// AuthRateLimiterMiddleware applies the stricter limit used on auth routes
func (rl *RateLimiter) AuthRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.authLimiter(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many authentication attempts. Please try again later."})
			c.Abort()
			return
		}
		c.Next()
	}
}
