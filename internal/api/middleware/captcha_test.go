package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Cedctf/foodbridge-sub000/internal/captcha"
	"github.com/Cedctf/foodbridge-sub000/internal/config"
)

type MockTurnstileVerifier struct {
	mock.Mock
}

func (m *MockTurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	args := m.Called(ctx, token, remoteIP)
	return args.Bool(0), args.Error(1)
}

func (m *MockTurnstileVerifier) GenerateHumanToken(userID, ip, fingerprint, spaSession string, ttl time.Duration) (string, error) {
	args := m.Called(userID, ip, fingerprint, spaSession, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockTurnstileVerifier) ValidateHumanToken(tokenString, ip, fingerprint, spaSession string) bool {
	return m.Called(tokenString, ip, fingerprint, spaSession).Bool(0)
}

type captchaResult struct {
	IsHuman bool   `json:"is_human"`
	XCT     string `json:"xct"`
}

func runCaptcha(t *testing.T, cfg *config.Config, verifier captcha.ITurnstileVerifier, headers map[string]string) captchaResult {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CaptchaMiddleware(cfg, verifier))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, captchaResult{IsHuman: c.GetBool(ContextKeyIsHumanVerified), XCT: c.Writer.Header().Get("X-C-T")})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "1.1.1.1:12345"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var res captchaResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestCaptchaMiddleware_NoHeaders(t *testing.T) {
	verifier := new(MockTurnstileVerifier)
	res := runCaptcha(t, &config.Config{}, verifier, nil)

	assert.False(t, res.IsHuman)
	assert.Empty(t, res.XCT)
	verifier.AssertNotCalled(t, "Verify")
	verifier.AssertNotCalled(t, "ValidateHumanToken")
}

func TestCaptchaMiddleware_ChallengeIssuesToken(t *testing.T) {
	cfg := &config.Config{CaptchaTokenTTL: 10 * time.Minute}
	verifier := new(MockTurnstileVerifier)
	verifier.On("Verify", mock.Anything, "challenge", "1.1.1.1").Return(true, nil)
	verifier.On("GenerateHumanToken", "", "1.1.1.1", "fp", "sess", cfg.CaptchaTokenTTL).Return("xct", nil)

	res := runCaptcha(t, cfg, verifier, map[string]string{"X-C-V": "challenge", "X-BFP": "fp", "X-SPA": "sess"})

	assert.True(t, res.IsHuman)
	assert.Equal(t, "xct", res.XCT)
	verifier.AssertExpectations(t)
}

func TestCaptchaMiddleware_FailedChallenge(t *testing.T) {
	verifier := new(MockTurnstileVerifier)
	verifier.On("Verify", mock.Anything, "bad", "1.1.1.1").Return(false, nil)

	res := runCaptcha(t, &config.Config{}, verifier, map[string]string{"X-C-V": "bad"})

	assert.False(t, res.IsHuman)
	assert.Empty(t, res.XCT)
	verifier.AssertNotCalled(t, "GenerateHumanToken")
}

func TestCaptchaMiddleware_HumanToken(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"valid token", true},
		{"rejected token", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := new(MockTurnstileVerifier)
			verifier.On("ValidateHumanToken", "token", "1.1.1.1", "fp", "sess").Return(tt.valid)

			res := runCaptcha(t, &config.Config{}, verifier, map[string]string{"X-C-T": "token", "X-BFP": "fp", "X-SPA": "sess"})

			assert.Equal(t, tt.valid, res.IsHuman)
			assert.Empty(t, res.XCT)
			verifier.AssertExpectations(t)
			verifier.AssertNotCalled(t, "Verify")
		})
	}
}
