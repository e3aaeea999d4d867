package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/Cedctf/foodbridge-sub000/internal/config"
)

const humanTokenIssuer = "foodbridge-captcha"

// ITurnstileVerifier verifies Cloudflare Turnstile challenges and issues the
// short-lived human tokens (X-C-T) that let a verified client skip the soft rate limit.
type ITurnstileVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
	GenerateHumanToken(userID, ip, fingerprint, spaSession string, ttl time.Duration) (string, error)
	ValidateHumanToken(tokenString, ip, fingerprint, spaSession string) bool
}

// siteVerifyResponse is the subset of the siteverify reply we read.
type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
	Action     string   `json:"action"`
}

type turnstileVerifier struct {
	secretKey  string
	verifyURL  string
	signingKey []byte
	httpClient *http.Client
}

// NewTurnstileVerifier creates a new Turnstile verifier.
func NewTurnstileVerifier(cfg *config.Config) ITurnstileVerifier {
	return &turnstileVerifier{
		secretKey:  cfg.CloudflareTurnstileSecretKey,
		verifyURL:  cfg.CloudflareSiteVerifyURL,
		signingKey: []byte(cfg.JwtSecret),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Verify calls the Cloudflare siteverify endpoint. Without a secret key
// (local development) every challenge passes.
func (v *turnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if v.secretKey == "" {
		slog.Warn("Turnstile secret key not configured, skipping verification")
		return true, nil
	}

	form := map[string]string{"secret": v.secretKey, "response": token}
	if remoteIP != "" {
		form["remoteip"] = remoteIP
	}
	body, err := json.Marshal(form)
	if err != nil {
		return false, fmt.Errorf("failed to encode turnstile request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create turnstile request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to contact turnstile service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return false, fmt.Errorf("failed to read turnstile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("turnstile verification failed with status %d", resp.StatusCode)
	}

	var result siteVerifyResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return false, fmt.Errorf("failed to parse turnstile response: %w", err)
	}
	if !result.Success {
		slog.Info("turnstile verification unsuccessful", "error_codes", result.ErrorCodes)
	}
	return result.Success, nil
}

// HumanTokenClaims binds a passed challenge to the client that solved it.
type HumanTokenClaims struct {
	UserID      string `json:"uid,omitempty"`
	IP          string `json:"ip"`
	Fingerprint string `json:"bfp"`
	SPASession  string `json:"spa"`
	jwt.RegisteredClaims
}

// GenerateHumanToken creates a signed token confirming successful captcha validation.
func (v *turnstileVerifier) GenerateHumanToken(userID, ip, fingerprint, spaSession string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &HumanTokenClaims{
		UserID:      userID,
		IP:          ip,
		Fingerprint: fingerprint,
		SPASession:  spaSession,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    humanTokenIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign human token: %w", err)
	}
	return signed, nil
}

var errClientMismatch = errors.New("human token issued to a different client")

// ValidateHumanToken checks the token signature, expiry and that it was
// issued to the same ip, fingerprint and SPA session.
func (v *turnstileVerifier) ValidateHumanToken(tokenString, ip, fingerprint, spaSession string) bool {
	claims := &HumanTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(humanTokenIssuer))
	if err == nil && (claims.IP != ip || claims.Fingerprint != fingerprint || claims.SPASession != spaSession) {
		err = errClientMismatch
	}
	if err != nil {
		slog.Debug("rejected human token", "ip", ip, "error", err)
		return false
	}
	return true
}
