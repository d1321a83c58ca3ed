package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/ehr-chainview/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

func errorBody(c *gin.Context, status int, message string) ErrorResponse {
	return ErrorResponse{
		Status:  "error",
		Code:    status,
		Message: message,
		TraceID: c.GetString(ContextRequestID),
	}
}

// Abort stops the chain with a JSON error body.
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorBody(c, status, message))
}

// ErrorHandler renders the last error handlers attached with c.Error.
// AppErrors keep their status and public message; anything else is a 500
// with a generic message.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", traceID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Interface("meta", e.Meta).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		status, message := describe(c.Errors.Last())
		c.JSON(status, errorBody(c, status, message))
	}
}

func describe(e *gin.Error) (int, string) {
	var appErr *apperrors.AppError
	if errors.As(e.Err, &appErr) {
		status := appErr.StatusCode()
		if status == http.StatusInternalServerError {
			return status, "internal server error"
		}
		return status, appErr.Message
	}
	if e.IsType(gin.ErrorTypeBind) {
		return http.StatusBadRequest, e.Error()
	}
	if sc, ok := e.Err.(interface{ StatusCode() int }); ok {
		return sc.StatusCode(), e.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}
