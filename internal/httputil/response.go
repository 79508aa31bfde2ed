// Package httputil provides HTTP utility functions for request and response handling.
package httputil

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/apikeys/internal/errors"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

type errorMapping struct {
	sentinel error
	status   int
	response ErrorResponse
	// exposeMessage returns err.Error() to the client instead of the fixed message.
	exposeMessage bool
}

// errorMappings is checked in order; the first matching sentinel wins. Authentication
// failures share one generic body so clients cannot tell a revoked token from an
// unknown one.
var errorMappings = []errorMapping{
	{apperrors.ErrNotFound, http.StatusNotFound,
		ErrorResponse{Error: "not_found", Message: "The requested resource was not found"}, false},
	{apperrors.ErrConflict, http.StatusConflict,
		ErrorResponse{Error: "conflict", Message: "A conflict occurred with existing data"}, false},
	{apperrors.ErrInvalidInput, http.StatusUnprocessableEntity,
		ErrorResponse{Error: "invalid_input"}, true},
	{apperrors.ErrUnauthorized, http.StatusUnauthorized,
		ErrorResponse{Error: "unauthorized", Message: "A valid API key is required"}, false},
	{apperrors.ErrTooManyRequests, http.StatusTooManyRequests,
		ErrorResponse{Error: "rate_limit_exceeded", Message: "Too many requests. Please retry after the specified delay."}, false},
	{apperrors.ErrForbidden, http.StatusForbidden,
		ErrorResponse{Error: "forbidden", Message: "This API key is not allowed to perform this request"}, false},
}

// HandleErrorGin maps err to a status code and JSON body through errorMappings.
// Anything unmapped is a 500 whose details stay in the log.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	statusCode := http.StatusInternalServerError
	errorResponse := ErrorResponse{Error: "internal_error", Message: "An internal error occurred"}
	for _, mapping := range errorMappings {
		if apperrors.Is(err, mapping.sentinel) {
			statusCode = mapping.status
			errorResponse = mapping.response
			if mapping.exposeMessage {
				errorResponse.Message = err.Error()
			}
			break
		}
	}

	if logger != nil {
		level := slog.LevelWarn
		if statusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		ctx := context.Background()
		if c.Request != nil {
			ctx = c.Request.Context()
		}
		logger.Log(ctx, level, "request failed",
			slog.Int("status_code", statusCode),
			slog.String("error_code", errorResponse.Error),
			slog.Any("error", err),
		)
	}

	c.JSON(statusCode, errorResponse)
}

// HandleBadRequestGin writes a 400 for malformed JSON, path or query parameters.
func HandleBadRequestGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("bad request", slog.Any("error", err))
	}

	errorResponse := ErrorResponse{
		Error:   "bad_request",
		Message: err.Error(),
	}

	c.JSON(http.StatusBadRequest, errorResponse)
}

// HandleValidationErrorGin writes a 422 carrying the validation messages.
func HandleValidationErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("validation failed", slog.Any("error", err))
	}

	errorResponse := ErrorResponse{
		Error:   "validation_error",
		Message: err.Error(),
	}

	c.JSON(http.StatusUnprocessableEntity, errorResponse)
}
