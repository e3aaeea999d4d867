package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Cedctf/foodbridge-sub000/internal/config"
)

func limitedEngine(rm *RateLimiterMiddleware, human bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextKeyIsHumanVerified, human)
		c.Next()
	})
	r.Use(rm.Limit())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r *gin.Engine, fingerprint string) int {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "5.5.5.5:1000"
	req.Header.Set("X-BFP", fingerprint)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

// Refill rates of zero keep the buckets from refilling during the test.
func limiterConfig() *config.Config {
	return &config.Config{
		RateLimitSoftBucketSize: 2,
		RateLimitHardBucketSize: 4,
	}
}

func TestRateLimiter_SoftLimitAsksForCaptcha(t *testing.T) {
	rm := NewRateLimiterMiddleware(limiterConfig())
	defer rm.Stop()
	r := limitedEngine(rm, false)

	assert.Equal(t, http.StatusOK, hit(r, "fp"))
	assert.Equal(t, http.StatusOK, hit(r, "fp"))
	assert.Equal(t, http.StatusTeapot, hit(r, "fp"))

	assert.Equal(t, http.StatusOK, hit(r, "other-client"), "buckets are per client")
}

func TestRateLimiter_HumanSkipsSoftButNotHardLimit(t *testing.T) {
	rm := NewRateLimiterMiddleware(limiterConfig())
	defer rm.Stop()
	r := limitedEngine(rm, true)

	for i := 0; i < 4; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "fp"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "fp"))
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rm := NewRateLimiterMiddleware(limiterConfig())
	rm.Stop()
	rm.Stop()

	rm.limiter("a")
	rm.limiter("b")
	rm.clients["a"].lastSeen = time.Now().Add(-2 * limiterIdleTimeout)

	assert.Equal(t, 1, rm.evictIdle(time.Now()))
	assert.Contains(t, rm.clients, "b")
	assert.NotContains(t, rm.clients, "a")
}
