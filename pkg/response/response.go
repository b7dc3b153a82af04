package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bakate/avionics/pkg/telemetry"
)

// Response is the JSON envelope the booking routes reply with, success or
// failure, so a client never has to branch on shape before it branches on
// Success. The webhook's {received: true} acknowledgement and the /ready
// report are written as plain JSON bodies, not in this envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorData  `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// meta stamps the request's trace ID (if any) so a reported error can be
// matched back to the span that produced it without the caller needing
// to read response headers.
func meta(c *gin.Context) interface{} {
	traceID := telemetry.GetTraceID(c.Request.Context())
	if traceID == "" {
		return nil
	}
	return gin.H{"traceId": traceID}
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
		Meta:    meta(c),
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
		Meta:    meta(c),
	})
}

func Error(c *gin.Context, status int, code, message string, details string) {
	c.JSON(status, Response{
		Success: false,
		Error: &ErrorData{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: meta(c),
	})
}

func InternalError(c *gin.Context, err error) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error", err.Error())
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", message, "")
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", message, "")
}
