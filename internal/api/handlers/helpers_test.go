package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Cedctf/foodbridge-sub000/internal/api/middleware"
	"github.com/Cedctf/foodbridge-sub000/internal/auth"
)

const testSecret = "handler-test-secret"

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func bearer(t *testing.T, userID string, admin bool) string {
	t.Helper()
	token, err := auth.GenerateJWT(userID, admin, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func optionalAuth() gin.HandlerFunc { return middleware.OptionalAuthMiddleware(testSecret) }
func requiredAuth() gin.HandlerFunc { return middleware.AuthMiddleware(testSecret) }

func do(r http.Handler, method, path string, body any, authorization string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func requireStatus(t *testing.T, want int, w *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, want, w.Code, w.Body.String())
}
