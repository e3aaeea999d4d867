package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Cedctf/foodbridge-sub000/internal/config"
)

const (
	limiterSweepInterval = 10 * time.Minute
	limiterIdleTimeout   = 30 * time.Minute
)

// clientLimiter stores rate limiters for a specific client.
type clientLimiter struct {
	soft     *rate.Limiter
	hard     *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware keeps a soft and a hard token bucket per client.
// Exceeding the hard bucket gives 429; exceeding the soft bucket gives 418
// unless the client passed a captcha.
type RateLimiterMiddleware struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter

	softRate, softBurst int
	hardRate, hardBurst int

	stop chan struct{}
	once sync.Once
}

// NewRateLimiterMiddleware creates a limiter with the configured bucket sizes and
// starts the idle-client sweep. Call Stop to end the sweep.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients:   make(map[string]*clientLimiter),
		softRate:  cfg.RateLimitSoftRefillRate,
		softBurst: cfg.RateLimitSoftBucketSize,
		hardRate:  cfg.RateLimitHardRefillRate,
		hardBurst: cfg.RateLimitHardBucketSize,
		stop:      make(chan struct{}),
	}
	go rm.sweep()
	return rm
}

// Stop ends the background sweep. Safe to call more than once.
func (rm *RateLimiterMiddleware) Stop() {
	rm.once.Do(func() { close(rm.stop) })
}

// clientKey identifies a client by IP, browser fingerprint and SPA session.
func clientKey(c *gin.Context) string {
	return fmt.Sprintf("%s|%s|%s", c.ClientIP(), c.GetHeader("X-BFP"), c.GetHeader("X-SPA"))
}

func (rm *RateLimiterMiddleware) limiter(key string) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	l, ok := rm.clients[key]
	if !ok {
		l = &clientLimiter{
			soft: rate.NewLimiter(rate.Limit(rm.softRate), rm.softBurst),
			hard: rate.NewLimiter(rate.Limit(rm.hardRate), rm.hardBurst),
		}
		rm.clients[key] = l
	}
	l.lastSeen = time.Now()
	return l
}

func (rm *RateLimiterMiddleware) sweep() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stop:
			return
		case now := <-ticker.C:
			if n := rm.evictIdle(now); n > 0 {
				slog.Debug("rate limiter evicted idle clients", "count", n)
			}
		}
	}
}

func (rm *RateLimiterMiddleware) evictIdle(now time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	n := 0
	for key, l := range rm.clients {
		if now.Sub(l.lastSeen) > limiterIdleTimeout {
			delete(rm.clients, key)
			n++
		}
	}
	return n
}

// Limit creates the Gin middleware handler. It must run after CaptchaMiddleware.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)
		l := rm.limiter(key)

		if !l.hard.Allow() {
			slog.Info("hard rate limit exceeded", "client", key, "path", c.FullPath())
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded", "code": "rate_limited"})
			return
		}

		if !c.GetBool(ContextKeyIsHumanVerified) && !l.soft.Allow() {
			slog.Info("soft rate limit exceeded", "client", key, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusTeapot, gin.H{"error": "Captcha validation required", "code": "captcha_required"})
			return
		}

		c.Next()
	}
}
