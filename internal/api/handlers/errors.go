package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cedctf/foodbridge-sub000/internal/services"
	"github.com/Cedctf/foodbridge-sub000/internal/storage"
)

// retryAfterSeconds is sent with every 503.
const retryAfterSeconds = "2"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// respondError maps a service error to its HTTP status and body.
func respondError(c *gin.Context, err error) {
	var (
		verr     *services.ValidationError
		conflict *services.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: verr.Reason, Code: "validation_failed", Fields: verr.Fields})
	case errors.Is(err, services.ErrInvalidIdentifier):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid identifier", Code: "invalid_identifier"})
	case errors.Is(err, storage.ErrUnsupportedContentType):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "unsupported_content_type", Fields: []string{"content_type"}})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: conflict.Message, Code: string(conflict.Kind)})
	case errors.Is(err, services.ErrTransientStorage), errors.Is(err, context.DeadlineExceeded):
		slog.Warn("request failed on transient error", "path", c.FullPath(), "error", err)
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Service temporarily unavailable, please retry", Code: "unavailable"})
	case errors.Is(err, services.ErrAssistantDisabled):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "assistant_disabled"})
	default:
		_ = c.Error(err)
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Code: "internal"})
	}
}

// badRequestBody answers a body that could not be decoded.
func badRequestBody(c *gin.Context) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "invalid_body"})
}
