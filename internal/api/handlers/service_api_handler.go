package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Cedctf/foodbridge-sub000/internal/email"
)

const (
	testEmailPolls     = 10
	testEmailPollDelay = 200 * time.Millisecond
)

// JsonApiRequest is the body of POST /api on the service port.
type JsonApiRequest struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// JsonApiResponse is the reply to a JsonApiRequest.
type JsonApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type serviceMethod func(c *gin.Context, args json.RawMessage) (interface{}, int, error)

// ServiceApiHandler serves operator and test-harness calls. It listens on a
// separate port that is never exposed publicly.
type ServiceApiHandler struct {
	rdb      *redis.Client
	shutdown chan<- struct{}
	methods  map[string]serviceMethod
}

func NewServiceApiHandler(rdb *redis.Client, shutdown chan<- struct{}) *ServiceApiHandler {
	h := &ServiceApiHandler{rdb: rdb, shutdown: shutdown}
	h.methods = map[string]serviceMethod{
		"shutdown":     h.requestShutdown,
		"getTestEmail": h.getTestEmail,
	}
	return h
}

// HandleRequest handles POST /api
func (h *ServiceApiHandler) HandleRequest(c *gin.Context) {
	var req JsonApiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, JsonApiResponse{Error: "Invalid request format"})
		return
	}

	method, ok := h.methods[req.Method]
	if !ok {
		c.JSON(http.StatusNotFound, JsonApiResponse{Error: fmt.Sprintf("Unknown service method: %s", req.Method)})
		return
	}

	data, status, err := method(c, req.Arguments)
	if err != nil {
		c.JSON(status, JsonApiResponse{Error: err.Error()})
		return
	}
	c.JSON(status, JsonApiResponse{Success: true, Data: data})
}

func (h *ServiceApiHandler) requestShutdown(_ *gin.Context, _ json.RawMessage) (interface{}, int, error) {
	slog.Info("shutdown requested via service API")
	select {
	case h.shutdown <- struct{}{}:
	default:
		slog.Info("shutdown already in progress")
	}
	return "Shutdown initiated", http.StatusOK, nil
}

// getTestEmail takes [templateID, recipient] and returns the captured
// message, polling briefly because delivery is asynchronous.
func (h *ServiceApiHandler) getTestEmail(c *gin.Context, args json.RawMessage) (interface{}, int, error) {
	var params []string
	if err := json.Unmarshal(args, &params); err != nil || len(params) != 2 {
		return nil, http.StatusBadRequest, errors.New("invalid arguments: expected JSON array [templateID, email]")
	}
	if h.rdb == nil {
		return nil, http.StatusServiceUnavailable, errors.New("redis is not configured")
	}
	key := email.MockEmailKey(params[1], params[0])

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	for i := 0; i < testEmailPolls; i++ {
		captured, err := email.GetCapturedEmail(ctx, h.rdb, key)
		switch {
		case err == nil:
			h.rdb.Del(ctx, key)
			return captured, http.StatusOK, nil
		case !errors.Is(err, redis.Nil):
			slog.Error("service API failed to read test email", "key", key, "error", err)
			return nil, http.StatusInternalServerError, errors.New("redis error")
		}
		select {
		case <-ctx.Done():
			return nil, http.StatusNotFound, fmt.Errorf("test email not found for key %s", key)
		case <-time.After(testEmailPollDelay):
		}
	}
	return nil, http.StatusNotFound, fmt.Errorf("test email not found for key %s", key)
}
