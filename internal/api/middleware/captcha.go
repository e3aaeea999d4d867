package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/Cedctf/foodbridge-sub000/internal/captcha"
	"github.com/Cedctf/foodbridge-sub000/internal/config"
)

const (
	// ContextKeyIsHumanVerified holds the key for captcha status in Gin context.
	ContextKeyIsHumanVerified = "isHumanVerified"
)

// CaptchaMiddleware handles Cloudflare Turnstile verification (X-C-V) and token (X-C-T) checks.
// It never rejects a request; the rate limiter decides what an unverified client may do.
func CaptchaMiddleware(cfg *config.Config, verifier captcha.ITurnstileVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		fingerprint := c.GetHeader("X-BFP")
		spaSession := c.GetHeader("X-SPA")

		isHuman := false
		if token := c.GetHeader("X-C-T"); token != "" {
			isHuman = verifier.ValidateHumanToken(token, clientIP, fingerprint, spaSession)
		}

		if challenge := c.GetHeader("X-C-V"); !isHuman && challenge != "" {
			verified, err := verifier.Verify(c.Request.Context(), challenge, clientIP)
			switch {
			case err != nil:
				slog.Warn("turnstile verification error", "ip", clientIP, "error", err)
			case verified:
				isHuman = true
				humanToken, err := verifier.GenerateHumanToken(UserID(c), clientIP, fingerprint, spaSession, cfg.CaptchaTokenTTL)
				if err != nil {
					slog.Error("failed to issue human token", "ip", clientIP, "error", err)
				} else {
					c.Header("X-C-T", humanToken)
				}
			}
		}

		c.Set(ContextKeyIsHumanVerified, isHuman)
		c.Next()
	}
}
